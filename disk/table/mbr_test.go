package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testSectors = 40960

func newImage(t *testing.T, sectors int64) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(sectors*MBRDefaultLBASize))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func writeBR(t *testing.T, f *os.File, br *MBR, sector int64) {
	t.Helper()
	bin, err := br.Pack()
	require.NoError(t, err)
	_, err = f.WriteAt(bin, sector*MBRDefaultLBASize)
	require.NoError(t, err)
}

func TestMBRPackParse(t *testing.T) {
	mbr := NewEmptyMBR()
	mbr.SetDiskSignature(0x0e772c1a)
	p := MBRPartition{BootIndicator: MBRPartitionBootable, PartitionType: Linux, StartingLBA: 2048, TotalSectors: 8192}
	p.SetCHS(2048, 10239)
	mbr.FullMainPartitionEntries[0] = p

	bin, err := mbr.Pack()
	require.NoError(t, err)
	require.Len(t, bin, MBRDefaultLBASize)
	assert.Equal(t, byte(0x55), bin[510])
	assert.Equal(t, byte(0xAA), bin[511])
	assert.Equal(t, byte(Linux), bin[0x1BE+4])

	parsed, err := ParseMBR(bin, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0e772c1a), parsed.DiskSignature())
	mps := parsed.MainPartitionEntries()
	require.Len(t, mps, 1)
	assert.Equal(t, 1, mps[0].Index)
	assert.Equal(t, int64(2048), mps[0].StartingLBA)
	assert.Equal(t, int64(10239), mps[0].EndSector())
	assert.True(t, mps[0].IsBootable())
	_, ok := parsed.ExtendedEntry()
	assert.False(t, ok)
}

func TestParseMBRRejectsBadSignature(t *testing.T) {
	_, err := ParseMBR(make([]byte, MBRDefaultLBASize), 0, false)
	assert.Error(t, err)
}

func TestEBRChainRoundTrip(t *testing.T) {
	f := newImage(t, testSectors)

	ext := MBRPartition{Index: 2, PartitionType: ExtendLBA, StartingLBA: 10240, TotalSectors: 20480}
	mbr := NewEmptyMBR()
	mbr.FullMainPartitionEntries[1] = ext
	writeBR(t, f, mbr, 0)

	first := LogicalPartition{
		MBRPartition: MBRPartition{PartitionType: Linux, StartingLBA: 12288, TotalSectors: 4096},
		EBRSector:    10240,
	}
	second := LogicalPartition{
		MBRPartition: MBRPartition{PartitionType: LinuxSwap, StartingLBA: 20480, TotalSectors: 2048},
		EBRSector:    20479,
	}
	writeBR(t, f, NewEBR(first, ext.StartingLBA, second.EBRSector, second.EndSector()), first.EBRSector)
	writeBR(t, f, NewEBR(second, ext.StartingLBA, 0, 0), second.EBRSector)

	parsed, err := ReadMBR(f, 0, MBRDefaultLBASize, false)
	require.NoError(t, err)
	gotExt, ok := parsed.ExtendedEntry()
	require.True(t, ok)

	lps, err := ReadEBRChain(f, gotExt, MBRDefaultLBASize)
	require.NoError(t, err)
	require.Len(t, lps, 2)
	assert.Equal(t, 5, lps[0].Index)
	assert.Equal(t, int64(12288), lps[0].StartingLBA)
	assert.Equal(t, int64(10240), lps[0].EBRSector)
	assert.Equal(t, 6, lps[1].Index)
	assert.Equal(t, int64(20480), lps[1].StartingLBA)
	assert.Equal(t, int64(22527), lps[1].EndSector())
	assert.Equal(t, LinuxSwap, lps[1].PartitionType)
	assert.True(t, lps[1].IsLogical)

	o, err := parsed.JSONFormat(MBRDefaultLBASize, lps)
	require.NoError(t, err)
	assert.Equal(t, "MBR", gjson.Get(o, "disk_label_type").String())
	assert.Equal(t, int64(3), gjson.Get(o, "parts.#").Int())
	assert.Equal(t, "Linux swap", gjson.Get(o, "parts.2.type_desc").String())
	assert.Contains(t, parsed.DebugFormat(MBRDefaultLBASize, lps), "Linux swap")
}

func TestEBRChainEmptyExtended(t *testing.T) {
	f := newImage(t, testSectors)
	ext := MBRPartition{Index: 1, PartitionType: ExtendCHS, StartingLBA: 2048, TotalSectors: 4096}
	lps, err := ReadEBRChain(f, ext, MBRDefaultLBASize)
	require.NoError(t, err)
	assert.Empty(t, lps)
}

func TestEBRChainLoopDetected(t *testing.T) {
	f := newImage(t, testSectors)
	ext := MBRPartition{Index: 1, PartitionType: ExtendLBA, StartingLBA: 2048, TotalSectors: 8192}
	logical := func(ebr int64) LogicalPartition {
		return LogicalPartition{
			MBRPartition: MBRPartition{PartitionType: Linux, StartingLBA: ebr + 1, TotalSectors: 100},
			EBRSector:    ebr,
		}
	}
	// 2048 -> 3000 -> 4000 -> 3000.
	writeBR(t, f, NewEBR(logical(2048), ext.StartingLBA, 3000, 3100), 2048)
	writeBR(t, f, NewEBR(logical(3000), ext.StartingLBA, 4000, 4100), 3000)
	writeBR(t, f, NewEBR(logical(4000), ext.StartingLBA, 3000, 3100), 4000)
	_, err := ReadEBRChain(f, ext, MBRDefaultLBASize)
	assert.Error(t, err)
}

func TestLBAToCHS(t *testing.T) {
	h, s, c := lbaToCHS(2048)
	assert.Equal(t, byte(32), h)
	assert.Equal(t, byte(33), s)
	assert.Equal(t, byte(0), c)

	h, s, c = lbaToCHS(1 << 30)
	assert.Equal(t, []byte{0xFE, 0xFF, 0xFF}, []byte{h, s, c})
}
