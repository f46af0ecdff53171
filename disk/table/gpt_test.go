package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewGPTLayout(t *testing.T) {
	gpt, err := NewGPT(testSectors, GPTDefaultLBASize)
	require.NoError(t, err)
	assert.Equal(t, int64(34), gpt.Header.FirstUsableLBA)
	assert.Equal(t, int64(testSectors-34), gpt.Header.LastUsableLBA)
	assert.Equal(t, int64(testSectors-1), gpt.Header.BackupLBA)
	assert.Len(t, gpt.PartitionEntries, GPTPartitionEntryCount)
	assert.Equal(t, 128, gpt.PartitionEntries[127].Index)

	backup := gpt.Backup()
	assert.Equal(t, int64(testSectors-1), backup.Header.CurrentLBA)
	assert.Equal(t, int64(GPTHeaderLBA), backup.Header.BackupLBA)
	assert.Equal(t, int64(testSectors-33), backup.Header.StartingLBAForPartEntries)

	_, err = NewGPT(40, GPTDefaultLBASize)
	assert.Error(t, err)
}

func TestGPTWriteRead(t *testing.T) {
	f := newImage(t, testSectors)
	gpt, err := NewGPT(testSectors, GPTDefaultLBASize)
	require.NoError(t, err)
	e := &gpt.PartitionEntries[2]
	e.PartTypeGUID = MustGUIDFromString(LinuxFSData)
	e.UniqGUID = NewRandomGUID()
	e.FirstLBAIndex = 2048
	e.LastLBAIndex = 10239
	e.SetPartitionName("rescued")
	require.NoError(t, gpt.WriteTo(f))
	writeBR(t, f, NewProtectiveMBR(testSectors), 0)

	dt, err := GetDiskType(f, GPTDefaultLBASize)
	require.NoError(t, err)
	assert.Equal(t, DTypeGPT, dt)

	parsed, err := ReadGPT(f, GPTDefaultLBASize, GPTHeaderLBA)
	require.NoError(t, err)
	assert.Equal(t, gpt.Header.GUID, parsed.Header.GUID)
	got := parsed.PartitionEntries[2]
	assert.Equal(t, 3, got.Index)
	assert.Equal(t, LinuxFSData, got.PartTypeGUIDInMixedEndian())
	assert.Equal(t, "Linux filesystem", got.PartTypeDesc())
	assert.Equal(t, "rescued", got.DecodedPartitionName())
	assert.Equal(t, int64(2048), got.FirstLBAIndex)
	assert.True(t, parsed.PartitionEntries[0].IsEmpty())

	backup, err := ReadGPT(f, GPTDefaultLBASize, testSectors-1)
	require.NoError(t, err)
	assert.Equal(t, int64(10239), backup.PartitionEntries[2].LastLBAIndex)

	o, err := parsed.JSONFormat()
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.Get(o, "parts.#").Int())
	assert.Equal(t, "rescued", gjson.Get(o, "parts.0.name").String())
	assert.Contains(t, parsed.DebugFormat(), "Linux filesystem")
}

func TestGPTFallsBackToBackup(t *testing.T) {
	f := newImage(t, testSectors)
	gpt, err := NewGPT(testSectors, GPTDefaultLBASize)
	require.NoError(t, err)
	gpt.PartitionEntries[0].PartTypeGUID = MustGUIDFromString(SwapPartition)
	gpt.PartitionEntries[0].FirstLBAIndex = 4096
	gpt.PartitionEntries[0].LastLBAIndex = 8191
	require.NoError(t, gpt.WriteTo(f))

	// 破坏主GPT的表项, 主表CRC校验失败.
	_, err = f.WriteAt([]byte{0xFF, 0xFF}, GPTEntriesLBA*GPTDefaultLBASize+0x20)
	require.NoError(t, err)
	_, err = ReadGPT(f, GPTDefaultLBASize, GPTHeaderLBA)
	require.Error(t, err)

	recovered, err := ReadGPTWithBackup(f, GPTDefaultLBASize, testSectors)
	require.NoError(t, err)
	assert.Equal(t, int64(GPTHeaderLBA), recovered.Header.CurrentLBA)
	assert.Equal(t, int64(GPTEntriesLBA), recovered.Header.StartingLBAForPartEntries)
	assert.True(t, recovered.PartitionEntries[0].IsSwap())
	assert.Equal(t, int64(4096), recovered.PartitionEntries[0].FirstLBAIndex)
}
