package undelete

import (
	"strings"

	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

// RangeInValidPartitions 若start或end落在任一已编号的非扩展分区内, 则返回true.
// 检查在分区表副本上进行.
func RangeInValidPartitions(d *parted.Disk, start, end int64) (bool, error) {
	dup, err := d.Duplicate()
	if err != nil {
		return false, errors.Wrap(err, "inspect partition table")
	}
	for _, p := range dup.ActivePartitions() {
		if p.Num < 1 || p.Type.Has(parted.PartitionExtended) {
			continue
		}
		if p.Geom.TestSectorInside(start) || p.Geom.TestSectorInside(end) {
			return true, nil
		}
	}
	return false, nil
}

// AddPartition 若候选区域未与已有分区重叠, 则在该区域中搜索文件系统;
// 找到时将其加入分区表, 写入设备并通知内核. 区域已被占用或未找到文件系统时返回nil.
// 写入设备失败时分区从内存中的分区表移除; 仅通知内核失败时分区已落盘, 与错误一并返回.
func (s *Session) AddPartition(d *parted.Disk, candidate Descriptor) (*parted.Partition, error) {
	p, err := s.addPartition(d, candidate)
	if err != nil || p == nil {
		return nil, err
	}
	if err = d.CommitToDev(); err != nil {
		_ = d.RemovePartition(p)
		return nil, withCause(ErrCommit, err)
	}
	if err = d.CommitToOS(); err != nil {
		return p, withCause(ErrCommit, err)
	}
	s.logger.Infof("AddPartition(%s). Rescued %s partition %d at %s", d.Dev.Path, p.Fs, p.Num, p.Geom)
	return p, nil
}

// addPartition 同 AddPartition, 但仅修改内存中的分区表.
func (s *Session) addPartition(d *parted.Disk, candidate Descriptor) (*parted.Partition, error) {
	occupied, err := RangeInValidPartitions(d, candidate.Start, candidate.End)
	if err != nil {
		return nil, err
	}
	if occupied {
		s.logger.Debugf("addPartition(%s). %s overlaps a valid partition, skip", d.Dev.Path, candidate)
		return nil, nil
	}
	return s.Rescuable(d, candidate.Start, candidate.End), nil
}

// Plan 期望分区列表与当前分区表的差异, 按分区编号匹配.
// 编号变化但区域相同的分区会被视为一删一增.
type Plan struct {
	Keep  []Descriptor
	Erase []Descriptor
	Add   []Descriptor
}

// Empty 若无需删除或新增任何分区, 则返回true.
func (p *Plan) Empty() bool {
	return len(p.Erase) == 0 && len(p.Add) == 0
}

func (p *Plan) String() string {
	lines := make([]string, 0, len(p.Keep)+len(p.Erase)+len(p.Add))
	for _, set := range []struct {
		verb string
		ds   []Descriptor
	}{{"keep", p.Keep}, {"erase", p.Erase}, {"add", p.Add}} {
		for _, d := range set.ds {
			lines = append(lines, set.verb+" "+d.String())
		}
	}
	if len(lines) == 0 {
		return "nothing to do"
	}
	return strings.Join(lines, "\n")
}

func numbers(ds []Descriptor) []int {
	return funk.Map(ds, func(d Descriptor) int { return d.Number }).([]int)
}

// Reconcile 计算使d的分区表与desired一致所需的删除与新增.
// 删除仍包含未被删除的逻辑分区的扩展分区时返回 ErrInvalidTable.
func (s *Session) Reconcile(d *parted.Disk, desired []Descriptor) (*Plan, error) {
	plan := new(Plan)
	current := describeAll(d.ActivePartitions())
	wanted := numbers(desired)
	for _, c := range current {
		if funk.ContainsInt(wanted, c.Number) {
			plan.Keep = append(plan.Keep, c)
		} else {
			plan.Erase = append(plan.Erase, c)
		}
	}
	tabulated := numbers(current)
	for _, w := range desired {
		if w.Number != Unassigned && funk.ContainsInt(tabulated, w.Number) {
			continue
		}
		plan.Add = append(plan.Add, w)
	}

	erased := numbers(plan.Erase)
	if ext := d.ExtendedPartition(); ext != nil && funk.ContainsInt(erased, ext.Num) {
		for _, l := range d.LogicalPartitions() {
			if !funk.ContainsInt(erased, l.Num) {
				return nil, errors.Wrapf(ErrInvalidTable,
					"cannot erase extended partition %d while logical partition %d is kept", ext.Num, l.Num)
			}
		}
	}
	return plan, nil
}

// apply 在内存中执行plan: 先删除后新增, 任一步失败立即返回.
func (s *Session) apply(d *parted.Disk, plan *Plan) error {
	// 删除会使逻辑分区重新编号, 因此先按编号取得全部句柄.
	victims := make([]*parted.Partition, 0, len(plan.Erase))
	for _, e := range plan.Erase {
		p := d.GetPartition(e.Number)
		if p == nil {
			return errors.Wrapf(ErrInvalidTable, "partition %d disappeared", e.Number)
		}
		victims = append(victims, p)
	}
	// 逻辑分区先于扩展分区删除.
	for _, p := range victims {
		if p.Type.Has(parted.PartitionLogical) {
			if err := d.RemovePartition(p); err != nil {
				return withCause(ErrInvalidTable, err)
			}
		}
	}
	for _, p := range victims {
		if !p.Type.Has(parted.PartitionLogical) {
			if err := d.RemovePartition(p); err != nil {
				return withCause(ErrInvalidTable, err)
			}
		}
	}

	for _, a := range plan.Add {
		p, err := s.addPartition(d, a)
		if err != nil {
			return withCause(ErrAddPartition, err)
		}
		if p == nil {
			return errors.Wrapf(ErrAddPartition, "no rescuable filesystem in %s", a)
		}
		s.logger.Debugf("apply(%s). Hint %s became partition %d at %s", d.Dev.Path, a, p.Num, p.Geom)
	}
	return nil
}
