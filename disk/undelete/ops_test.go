package undelete

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fossicktest"
	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/kisun-bit/undelpart/sys/ioctl"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const (
	testSectors = 20480
	// 被删除的ext文件系统起点与大小(扇区).
	lostStart = 8692
	lostLen   = 2048
)

func newImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(testSectors*512))
	require.NoError(t, f.Close())
	return path
}

func newTestSession(options ...Option) *Session {
	options = append([]Option{WithLogger(logger.NewNopLogger())}, options...)
	s := NewSession(options...)
	s.mounted = func() ([]string, error) { return nil, nil }
	return s
}

// prepare 创建msdos分区表, 分区1位于[2048, 8191], 并在fsStart处写入一个未登记的ext文件系统.
// setup 可在落盘前继续修改分区表.
func prepare(t *testing.T, fsStart int64, setup func(d *parted.Disk)) string {
	t.Helper()
	path := newImage(t, "disk.img")
	dev, err := parted.OpenDevice(path, parted.WithDeviceLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	defer dev.Close()

	d, err := parted.NewFreshDisk(dev, table.DTypeMBR)
	require.NoError(t, err)
	p, err := d.NewPartition(parted.PartitionNormal, "", 2048, 8191)
	require.NoError(t, err)
	require.NoError(t, d.AddPartition(p, parted.ConstraintExact(parted.Geometry{Start: 2048, End: 8191})))
	if setup != nil {
		setup(d)
	}
	require.NoError(t, d.CommitToDev())
	if fsStart > 0 {
		require.NoError(t, fossicktest.WriteExt(dev, fsStart*512, lostLen*512))
	}
	return path
}

func TestGetPartitionList(t *testing.T) {
	path := prepare(t, 0, nil)
	s := newTestSession()
	ds, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}}, ds)

	_, err = s.GetPartitionList(filepath.Join(t.TempDir(), "missing.img"))
	assert.Error(t, err)
}

func TestGetRescuable(t *testing.T) {
	path := prepare(t, lostStart, nil)
	s := newTestSession()
	ds, err := s.GetRescuable(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{2, lostStart, lostStart + lostLen - 1}}, ds)

	// 只读操作不改变分区表.
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}}, current)
}

func TestGetRescuableOutsideWindow(t *testing.T) {
	// 空闲区[8192, 20479]的搜索窗口止于9420.
	path := prepare(t, 12000, nil)
	ds, err := newTestSession().GetRescuable(path)
	require.NoError(t, err)
	assert.Empty(t, ds)

	ds, err = newTestSession(WithSearchRatio(0.5)).GetRescuable(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{2, 12000, 12000 + lostLen - 1}}, ds)
}

func TestRescue(t *testing.T) {
	path := prepare(t, lostStart, nil)
	s := newTestSession()
	rescued, err := s.Rescue(path, []Descriptor{{Unassigned, 8192, testSectors - 1}})
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{2, lostStart, lostStart + lostLen - 1}}, rescued)

	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}, {2, lostStart, lostStart + lostLen - 1}}, current)

	// 再次执行时没有可找回的分区.
	ds, err := s.GetRescuable(path)
	require.NoError(t, err)
	assert.Empty(t, ds)
	rescued, err = s.Rescue(path, []Descriptor{{Unassigned, 8192, testSectors - 1}})
	require.NoError(t, err)
	assert.Empty(t, rescued)
	after, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, current, after)
}

func TestRescueSkipsOccupied(t *testing.T) {
	path := prepare(t, lostStart, nil)
	s := newTestSession()
	rescued, err := s.Rescue(path, []Descriptor{{Unassigned, 4000, testSectors - 1}})
	require.NoError(t, err)
	assert.Empty(t, rescued)

	_, err = s.Rescue(path, []Descriptor{{Unassigned, 8192, testSectors}})
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
}

func TestRescueContinuesAfterFailure(t *testing.T) {
	path := prepare(t, lostStart, nil)
	s := newTestSession()
	dev, d, err := s.open(path, true)
	require.NoError(t, err)
	defer dev.Close()

	// 只读设备上每个候选都写入失败, 但所有候选都会被尝试.
	candidate := Descriptor{Unassigned, 8192, testSectors - 1}
	rescued, err := s.rescue(d, []Descriptor{candidate, candidate})
	assert.Empty(t, rescued)
	assert.ErrorIs(t, err, ErrCommit)
	assert.ErrorIs(t, err, parted.ErrReadOnly)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Len(t, d.ActivePartitions(), 1)
}

func TestSectorSizeRemembered(t *testing.T) {
	path := prepare(t, 0, nil)
	s := newTestSession()
	_, ok := s.sectorSizes.Load(path)
	assert.False(t, ok)
	assert.EqualValues(t, 512, s.SectorSize(path))

	_, err := s.GetPartitionList(path)
	require.NoError(t, err)
	v, ok := s.sectorSizes.Load(path)
	require.True(t, ok)
	assert.EqualValues(t, 512, v)
}

func TestSetPartitionListUnchanged(t *testing.T) {
	path := prepare(t, 0, nil)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ok, err := newTestSession().SetPartitionList(path, []Descriptor{{1, 2048, 8191}})
	require.NoError(t, err)
	assert.True(t, ok)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSetPartitionListErase(t *testing.T) {
	path := prepare(t, lostStart, nil)
	s := newTestSession()
	_, err := s.Rescue(path, []Descriptor{{Unassigned, 8192, testSectors - 1}})
	require.NoError(t, err)

	ok, err := s.SetPartitionList(path, []Descriptor{{2, lostStart, lostStart + lostLen - 1}})
	require.NoError(t, err)
	assert.True(t, ok)
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{2, lostStart, lostStart + lostLen - 1}}, current)
}

func TestSetPartitionListAdd(t *testing.T) {
	path := prepare(t, lostStart, nil)
	s := newTestSession()

	plan, err := s.PlanPartitionList(path, []Descriptor{{1, 2048, 8191}, {Unassigned, 8192, testSectors - 1}})
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}}, plan.Keep)
	assert.Empty(t, plan.Erase)
	assert.Equal(t, []Descriptor{{Unassigned, 8192, testSectors - 1}}, plan.Add)

	ok, err := s.SetPartitionList(path, []Descriptor{{1, 2048, 8191}, {Unassigned, 8192, testSectors - 1}})
	require.NoError(t, err)
	assert.True(t, ok)
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}, {2, lostStart, lostStart + lostLen - 1}}, current)
}

func TestSetPartitionListFailsClosed(t *testing.T) {
	path := prepare(t, 12000, nil)
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	s := newTestSession()

	// 未找到文件系统的新增使整体失败, 已计划的删除也不落盘.
	ok, err := s.SetPartitionList(path, []Descriptor{{Unassigned, 8192, testSectors - 1}})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAddPartition)

	ok, err = s.SetPartitionList(path, []Descriptor{{1, 2048, testSectors}})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedDescriptor)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func withLogical(t *testing.T) func(d *parted.Disk) {
	return func(d *parted.Disk) {
		ext, err := d.NewPartition(parted.PartitionExtended, "", 8192, testSectors-1)
		require.NoError(t, err)
		require.NoError(t, d.AddPartition(ext, parted.ConstraintExact(ext.Geom)))
		l, err := d.NewPartition(parted.PartitionLogical, "", 10240, 12287)
		require.NoError(t, err)
		require.NoError(t, d.AddPartition(l, parted.ConstraintExact(l.Geom)))
	}
}

func TestSetPartitionListExtended(t *testing.T) {
	path := prepare(t, 0, withLogical(t))
	s := newTestSession()
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	require.Equal(t, []Descriptor{{1, 2048, 8191}, {2, 8192, testSectors - 1}, {5, 10240, 12287}}, current)

	ok, err := s.SetPartitionList(path, []Descriptor{{1, 2048, 8191}, {5, 10240, 12287}})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidTable)

	ok, err = s.SetPartitionList(path, []Descriptor{{1, 2048, 8191}})
	require.NoError(t, err)
	assert.True(t, ok)
	current, err = s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}}, current)
}

func TestSetPartitionListMounted(t *testing.T) {
	path := prepare(t, 0, nil)
	s := newTestSession()
	s.mounted = func() ([]string, error) {
		return []string{canonicalPath(ioctl.GeneratePartDeviceName(path, 1))}, nil
	}
	ok, err := s.SetPartitionList(path, []Descriptor{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrPartitionMounted)

	s.mountCheck = false
	ok, err = s.SetPartitionList(path, []Descriptor{})
	require.NoError(t, err)
	assert.True(t, ok)
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestGetDiskList(t *testing.T) {
	a := newImage(t, "a.img")
	b := newImage(t, "b.img")
	missing := filepath.Join(t.TempDir(), "missing.img")
	s := newTestSession(
		WithProbeWorkers(2),
		WithDeviceEnumerator(func() ([]string, error) { return []string{b, missing, a}, nil }))
	disks, err := s.GetDiskList()
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, disks.Keys())
	rec, ok := disks.Get(a)
	require.True(t, ok)
	assert.Equal(t, DiskRecord{}, rec)

	s = newTestSession(WithDeviceEnumerator(func() ([]string, error) { return []string{missing}, nil }))
	_, err = s.GetDiskList()
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestNewSessionRatioFallback(t *testing.T) {
	assert.Equal(t, DefaultSearchRatio, newTestSession(WithSearchRatio(0)).searchRatio)
	assert.Equal(t, DefaultSearchRatio, newTestSession(WithSearchRatio(1.5)).searchRatio)
	assert.Equal(t, 0.5, newTestSession(WithSearchRatio(0.5)).searchRatio)
}

func TestEmptyTable(t *testing.T) {
	path := newImage(t, "empty.img")
	dev, err := parted.OpenDevice(path, parted.WithDeviceLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	d, err := parted.NewFreshDisk(dev, table.DTypeMBR)
	require.NoError(t, err)
	require.NoError(t, d.CommitToDev())
	require.NoError(t, fossicktest.WriteExt(dev, 1000*512, lostLen*512))
	require.NoError(t, dev.Close())

	s := newTestSession()
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Empty(t, current)
	ds, err := s.GetRescuable(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 1000, 1000 + lostLen - 1}}, ds)
}
