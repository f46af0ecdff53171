package parted

import (
	"testing"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick"
	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPTAddCommitReread(t *testing.T) {
	path, d := freshDisk(t, table.DTypeGPT)
	assert.Equal(t, table.DTypeGPT, d.Type())

	p, err := d.NewPartition(PartitionNormal, fossick.NTFS, 2048, 4095)
	require.NoError(t, err)
	p.Name = "data"
	require.NoError(t, d.AddPartition(p, nil))
	assert.Equal(t, 1, p.Num)
	assert.Equal(t, table.BasicDataPartition, table.GUIDToString(p.TypeGUID[:]))
	assert.NotEqual(t, [16]byte{}, p.UniqGUID)

	swap := addPartition(t, d, PartitionNormal, 8192, 10239)
	d.SetPartitionFilesystem(swap, fossick.SWAP)
	assert.Equal(t, table.SwapPartition, table.GUIDToString(swap.TypeGUID[:]))
	require.NoError(t, d.CommitToDev())

	d2 := reread(t, path)
	assert.Equal(t, table.DTypeGPT, d2.Type())
	assert.Equal(t, map[int]Geometry{1: {2048, 4095}, 2: {8192, 10239}}, geoms(d2.ActivePartitions()))
	got := d2.GetPartition(1)
	assert.Equal(t, p.UniqGUID, got.UniqGUID)
	assert.Equal(t, "data", got.Name)
	assert.Equal(t, "Microsoft basic data", got.TypeDesc())
}

func TestGPTLayout(t *testing.T) {
	_, d := freshDisk(t, table.DTypeGPT)
	layout := d.Partitions()
	require.Len(t, layout, 3)
	assert.Equal(t, Geometry{0, 33}, layout[0].Geom)
	assert.True(t, layout[0].Type.Has(PartitionMetadata))
	assert.Equal(t, Geometry{34, testSectors - 34}, layout[1].Geom)
	assert.True(t, layout[1].Type.Has(PartitionFreeSpace))
	assert.Equal(t, Geometry{testSectors - 33, testSectors - 1}, layout[2].Geom)

	_, err := d.NewPartition(PartitionLogical, "", 100, 200)
	assert.Error(t, err)

	// 元数据区内不能创建分区.
	p, err := d.NewPartition(PartitionNormal, "", 10, 200)
	require.NoError(t, err)
	assert.ErrorIs(t, d.AddPartition(p, ConstraintExact(p.Geom)), ErrConstraint)
}

func TestGPTFallsBackToBackup(t *testing.T) {
	path, d := freshDisk(t, table.DTypeGPT)
	addPartition(t, d, PartitionNormal, 2048, 4095)
	require.NoError(t, d.CommitToDev())

	// 破坏主GPT表头.
	require.NoError(t, d.Dev.WriteSectors(table.GPTHeaderLBA, make([]byte, 512)))

	d2 := reread(t, path)
	assert.Equal(t, map[int]Geometry{1: {2048, 4095}}, geoms(d2.ActivePartitions()))
	require.NoError(t, d2.CommitToDev())

	g, err := table.ReadGPT(d2.Dev, 512, table.GPTHeaderLBA)
	require.NoError(t, err)
	assert.Equal(t, int64(testSectors-1), g.Header.BackupLBA)
}
