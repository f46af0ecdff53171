package parted

import (
	"testing"

	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRefusesStaleTable(t *testing.T) {
	path, _ := freshDisk(t, table.DTypeMBR)
	first := reread(t, path)
	second := reread(t, path)

	addPartition(t, first, PartitionNormal, 2048, 4095)
	require.NoError(t, first.CommitToDev())

	addPartition(t, second, PartitionNormal, 8192, 10239)
	assert.ErrorIs(t, second.CommitToDev(), ErrStaleTable)
	assert.Equal(t, map[int]Geometry{1: {2048, 4095}}, geoms(reread(t, path).ActivePartitions()))

	// 提交后的指纹随之更新, 可继续提交.
	addPartition(t, first, PartitionNormal, 8192, 10239)
	require.NoError(t, first.CommitToDev())
}

func TestCommitReadOnly(t *testing.T) {
	path, _ := freshDisk(t, table.DTypeMBR)
	d, err := NewDisk(openDevice(t, path, WithReadOnly()))
	require.NoError(t, err)
	addPartition(t, d, PartitionNormal, 2048, 4095)
	assert.ErrorIs(t, d.CommitToDev(), ErrReadOnly)
}

func TestCommitToOSImageFile(t *testing.T) {
	_, d := freshDisk(t, table.DTypeMBR)
	assert.NoError(t, d.CommitToOS())
}
