package undelete

import (
	"testing"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fossicktest"
	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDisk(t *testing.T, path string) *parted.Disk {
	t.Helper()
	dev, err := parted.OpenDevice(path, parted.WithDeviceLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	d, err := parted.NewDisk(dev)
	require.NoError(t, err)
	return d
}

func TestRangeInValidPartitions(t *testing.T) {
	d := openDisk(t, prepare(t, 0, withLogical(t)))
	for _, c := range []struct {
		start, end int64
		want       bool
	}{
		{100, 2047, false},
		{100, 2048, true},
		{8191, 9000, true},
		// 扩展分区本身不计入.
		{8192, 10238, false},
		{9000, 10240, true},
		{12288, testSectors - 1, false},
	} {
		got, err := RangeInValidPartitions(d, c.start, c.end)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "[%d, %d]", c.start, c.end)
	}
}

func TestRescuableLeavesNoTrace(t *testing.T) {
	d := openDisk(t, prepare(t, lostStart, nil))
	s := newTestSession()

	dup, err := d.Duplicate()
	require.NoError(t, err)
	p := s.Rescuable(dup, 8192, testSectors-1)
	require.NotNil(t, p)
	assert.Equal(t, parted.Geometry{Start: lostStart, End: lostStart + lostLen - 1}, p.Geom)
	assert.Len(t, dup.ActivePartitions(), 2)
	assert.Len(t, d.ActivePartitions(), 1)

	// 未找到时不留下临时分区, 诊断恢复为正常输出.
	dup, err = d.Duplicate()
	require.NoError(t, err)
	assert.Nil(t, s.Rescuable(dup, 10740, testSectors-1))
	assert.Len(t, dup.ActivePartitions(), 1)
	assert.False(t, d.Dev.Exceptions().Suppressed())
}

func TestRescueRejectsFilesystemPastRegion(t *testing.T) {
	path := prepare(t, 0, nil)
	d := openDisk(t, path)
	// 文件系统占[8200, 16391], 超出提示区域[8192, 12287].
	require.NoError(t, fossicktest.WriteExt(d.Dev, 8200*512, 8192*512))
	require.NoError(t, d.Dev.Close())

	s := newTestSession()
	rescued, err := s.Rescue(path, []Descriptor{{Unassigned, 8192, 12287}})
	require.NoError(t, err)
	assert.Empty(t, rescued)
	current, err := s.GetPartitionList(path)
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}}, current)

	rescued, err = s.Rescue(path, []Descriptor{{Unassigned, 8192, testSectors - 1}})
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{2, 8200, 16391}}, rescued)
}

func TestDevicesHaveOwnExceptions(t *testing.T) {
	s := newTestSession()
	devA, _, err := s.open(prepare(t, lostStart, nil), true)
	require.NoError(t, err)
	defer devA.Close()
	devB, _, err := s.open(prepare(t, 0, nil), true)
	require.NoError(t, err)
	defer devB.Close()

	// 一个设备上的扫描不会压制另一个设备的诊断.
	restore := devA.Exceptions().Fetch()
	defer restore()
	assert.True(t, devA.Exceptions().Suppressed())
	assert.False(t, devB.Exceptions().Suppressed())
}

func TestReconcile(t *testing.T) {
	d := openDisk(t, prepare(t, 0, withLogical(t)))
	s := newTestSession()

	plan, err := s.Reconcile(d, []Descriptor{{1, 2048, 8191}, {2, 8192, testSectors - 1}, {5, 10240, 12287}})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Len(t, plan.Keep, 3)

	plan, err = s.Reconcile(d, []Descriptor{{2, 8192, testSectors - 1}, {5, 1, 1}, {7, 3000, 4000}, {Unassigned, 2048, 4095}})
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{{1, 2048, 8191}}, plan.Erase)
	// 已登记编号的坐标不参与比较.
	assert.Equal(t, []Descriptor{{7, 3000, 4000}, {Unassigned, 2048, 4095}}, plan.Add)
	assert.Equal(t, "keep [2, 8192, 20479]\nkeep [5, 10240, 12287]\nerase [1, 2048, 8191]\n"+
		"add [7, 3000, 4000]\nadd [-1, 2048, 4095]", plan.String())

	_, err = s.Reconcile(d, []Descriptor{{1, 2048, 8191}, {5, 10240, 12287}})
	assert.ErrorIs(t, err, ErrInvalidTable)

	assert.Equal(t, "nothing to do", (&Plan{}).String())
}
