package undelete

import (
	"sort"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DiskRecord 设备列表中每个设备的占位记录, 各槽位保留未用.
type DiskRecord [4]any

// GetDiskList 返回可被打开的设备, 键为设备路径并按路径排序.
// 未找到任何设备时返回 ErrNoDevices.
func (s *Session) GetDiskList() (*orderedmap.OrderedMap[string, DiskRecord], error) {
	candidates, err := s.enumerate()
	if err != nil {
		return nil, withCause(ErrNoDevices, err)
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		probed = make([]string, 0, len(candidates))
	)
	probeFunc := func(i interface{}) {
		defer wg.Done()
		path := i.(string)
		dev, err := parted.OpenDevice(path,
			parted.WithReadOnly(),
			parted.WithDeviceLogger(s.logger))
		if err != nil {
			s.logger.Debugf("GetDiskList. Skip %s: %v", path, err)
			return
		}
		_ = dev.Close()
		mu.Lock()
		probed = append(probed, path)
		mu.Unlock()
	}
	pool, err := ants.NewPoolWithFunc(s.workers, probeFunc)
	if err != nil {
		return nil, errors.Wrap(err, "init probe pool")
	}
	defer pool.Release()
	for _, path := range candidates {
		wg.Add(1)
		if err = pool.Invoke(path); err != nil {
			wg.Done()
			s.logger.Warnf("GetDiskList. Failed to schedule %s: %v", path, err)
		}
	}
	wg.Wait()

	if len(probed) == 0 {
		return nil, ErrNoDevices
	}
	sort.Strings(probed)
	disks := orderedmap.NewOrderedMap[string, DiskRecord]()
	for _, path := range probed {
		disks.Set(path, DiskRecord{})
	}
	s.logger.Debugf("GetDiskList. %d of %d candidate devices probed", len(probed), len(candidates))
	return disks, nil
}

// GetPartitionList 返回path分区表中所有已编号分区(含扩展分区).
func (s *Session) GetPartitionList(path string) ([]Descriptor, error) {
	dev, d, err := s.open(path, true)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return describeAll(d.ActivePartitions()), nil
}

// GetRescuable 在path分区表的每个空闲区域中搜索可找回的分区, 不修改设备.
func (s *Session) GetRescuable(path string) ([]Descriptor, error) {
	dev, d, err := s.open(path, true)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	found := make([]Descriptor, 0)
	for _, free := range d.FreeRegions() {
		dup, err := d.Duplicate()
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", free.Geom)
		}
		if p := s.Rescuable(dup, free.Geom.Start, free.Geom.End); p != nil {
			found = append(found, describe(p))
		}
	}
	s.logger.Infof("GetRescuable(%s). %d candidate(s) in %d free region(s)", path, len(found), len(d.FreeRegions()))
	return found, nil
}

// validateAll 检查全部描述符均位于设备内, 任一非法时不做任何修改.
func validateAll(ds []Descriptor, length int64) error {
	for _, d := range ds {
		if err := d.Validate(length); err != nil {
			return err
		}
	}
	return nil
}

// PlanPartitionList 计算 SetPartitionList 将执行的删除与新增, 不修改设备.
func (s *Session) PlanPartitionList(path string, desired []Descriptor) (*Plan, error) {
	dev, d, err := s.open(path, true)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	if err = validateAll(desired, dev.Length); err != nil {
		return nil, err
	}
	return s.Reconcile(d, desired)
}

// SetPartitionList 使path的分区表与desired一致: 删除未列出的分区, 在新增描述符给出的区域中找回分区,
// 检查整体一致性后写入设备并通知内核. 任一步失败时设备保持不变.
func (s *Session) SetPartitionList(path string, desired []Descriptor) (bool, error) {
	dev, d, err := s.open(path, false)
	if err != nil {
		return false, err
	}
	defer dev.Close()
	if err = validateAll(desired, dev.Length); err != nil {
		return false, err
	}

	plan, err := s.Reconcile(d, desired)
	if err != nil {
		return false, err
	}
	if plan.Empty() {
		s.logger.Infof("SetPartitionList(%s). Partition table already matches", path)
		return true, nil
	}
	s.logger.Infof("SetPartitionList(%s). Plan:\n%s", path, plan)

	if err = s.checkUnmounted(path, numbers(plan.Erase)); err != nil {
		return false, err
	}
	if err = s.apply(d, plan); err != nil {
		return false, err
	}
	if err = d.Check(); err != nil {
		return false, withCause(ErrInvalidTable, err)
	}
	if err = d.CommitToDev(); err != nil {
		return false, withCause(ErrCommit, err)
	}
	if err = d.CommitToOS(); err != nil {
		return false, withCause(ErrCommit, err)
	}
	return true, nil
}

// Rescue 对每个候选描述符执行 AddPartition, 返回成功找回的分区.
// 区域已被占用或未找到文件系统的候选被跳过; 单个候选失败时记录错误并继续处理其余候选,
// 返回的错误合并了所有失败.
func (s *Session) Rescue(path string, candidates []Descriptor) ([]Descriptor, error) {
	dev, d, err := s.open(path, false)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	if err = validateAll(candidates, dev.Length); err != nil {
		return nil, err
	}
	return s.rescue(d, candidates)
}

func (s *Session) rescue(d *parted.Disk, candidates []Descriptor) ([]Descriptor, error) {
	var errs error
	rescued := make([]Descriptor, 0, len(candidates))
	for _, c := range candidates {
		p, err := s.AddPartition(d, c)
		if err != nil {
			s.logger.Warnf("Rescue(%s). %s failed: %v", d.Dev.Path, c, err)
			errs = multierr.Append(errs, errors.WithMessagef(err, "rescue %s", c))
		}
		if p == nil {
			if err == nil {
				s.logger.Infof("Rescue(%s). Nothing rescued for %s", d.Dev.Path, c)
			}
			continue
		}
		rescued = append(rescued, describe(p))
	}
	return rescued, errs
}
