package table

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/dustin/go-humanize"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
	"github.com/tidwall/sjson"
)

// GPT GPT磁盘信息结构.
// 具体见: https://en.wikipedia.org/wiki/GUID_Partition_Table.
type GPT struct {
	SectorSize       int64
	Header           GPTHeader           // 分区表头(主表位于LBA1, 备份表位于最后一个LBA).
	PartitionEntries []GPTPartitionEntry // 分区表项, 长度等于 Header.NumberOfPartEntries.
}

// GPTHeader GPT分区表头, 共92字节, 所在扇区的其余部分为0.
type GPTHeader struct {
	Signature                 [8]byte  `struc:"[8]byte"`       // 0x00, 8, "EFI PART".
	Revision                  uint32   `struc:"uint32,little"` // 0x08, 4.
	HeaderSize                uint32   `struc:"uint32,little"` // 0x0C, 4.
	HeaderCRC32               uint32   `struc:"uint32,little"` // 0x10, 4, 表头0x00-HeaderSize的CRC32, 计算时此字段置0.
	Reserved                  uint32   `struc:"uint32,little"` // 0x14, 4.
	CurrentLBA                int64    `struc:"int64,little"`  // 0x18, 8, 当前表头所处LBA.
	BackupLBA                 int64    `struc:"int64,little"`  // 0x20, 8, 另一份表头所处LBA.
	FirstUsableLBA            int64    `struc:"int64,little"`  // 0x28, 8.
	LastUsableLBA             int64    `struc:"int64,little"`  // 0x30, 8.
	GUID                      [16]byte `struc:"[16]byte"`      // 0x38, 16, mixed endian.
	StartingLBAForPartEntries int64    `struc:"int64,little"`  // 0x48, 8.
	NumberOfPartEntries       uint32   `struc:"uint32,little"` // 0x50, 4.
	PartEntrySize             uint32   `struc:"uint32,little"` // 0x54, 4.
	PartEntriesCRC32          uint32   `struc:"uint32,little"` // 0x58, 4.
}

func (gh *GPTHeader) GUIDInMixedEndian() string {
	return GUIDToString(gh.GUID[:])
}

func (gh *GPTHeader) SignatureString() string {
	return string(gh.Signature[:])
}

// entriesSectors 分区表项数组占用的扇区数.
func (gh *GPTHeader) entriesSectors(sectorSize int64) int64 {
	n := int64(gh.NumberOfPartEntries) * int64(gh.PartEntrySize)
	return (n + sectorSize - 1) / sectorSize
}

// GPTPartitionEntry GPT磁盘的一项分区表项数据.
type GPTPartitionEntry struct {
	Index         int        `struc:"skip"`              // 分区位置索引(1起).
	PartTypeGUID  [16]byte   `struc:"[16]byte"`          // 0x00, 16, mixed endian, 分区类型GUID.
	UniqGUID      [16]byte   `struc:"[16]byte"`          // 0x10, 16, mixed endian, 唯一编码GUID.
	FirstLBAIndex int64      `struc:"int64,little"`      // 0x20, 8, 起始LBA(包含).
	LastLBAIndex  int64      `struc:"int64,little"`      // 0x28, 8, 结束LBA(包含).
	AttrFlags     uint64     `struc:"uint64,little"`     // 0x30, 8, 属性.
	PartitionName [36]uint16 `struc:"[36]uint16,little"` // 0x38, 72, UTF-16LE.
}

func (gpe *GPTPartitionEntry) PartTypeGUIDInMixedEndian() string {
	return GUIDToString(gpe.PartTypeGUID[:])
}

func (gpe *GPTPartitionEntry) UniqGUIDInMixedEndian() string {
	return GUIDToString(gpe.UniqGUID[:])
}

func (gpe *GPTPartitionEntry) DecodedPartitionName() string {
	s := string(utf16.Decode(gpe.PartitionName[:]))
	return strings.ReplaceAll(s, "\u0000", "")
}

// SetPartitionName 设置分区名称, 超出36个UTF-16代码单元的部分被截断.
func (gpe *GPTPartitionEntry) SetPartitionName(name string) {
	gpe.PartitionName = [36]uint16{}
	copy(gpe.PartitionName[:], utf16.Encode([]rune(name)))
}

// IsEmpty 若是空分区, 则返回True.
func (gpe *GPTPartitionEntry) IsEmpty() bool {
	return gpe.PartTypeGUID == [16]byte{}
}

// IsSwap 若是交换分区, 则返回True.
func (gpe *GPTPartitionEntry) IsSwap() bool {
	return funk.InStrings([]string{SwapPartition}, gpe.PartTypeGUIDInMixedEndian())
}

func (gpe *GPTPartitionEntry) PartTypeDesc() string {
	v, ok := GPTPartitionTypeDesc[gpe.PartTypeGUIDInMixedEndian()]
	if !ok {
		v = "UNKNOWN"
	}
	return v
}

// NewGPT 为共totalSectors个扇区的磁盘创建空GPT, 分区表项128个.
func NewGPT(totalSectors, sectorSize int64) (*GPT, error) {
	gpt := &GPT{SectorSize: sectorSize}
	h := &gpt.Header
	copy(h.Signature[:], GPTSignature)
	h.Revision = GPTRevision
	h.HeaderSize = GPTHeaderSize
	h.NumberOfPartEntries = GPTPartitionEntryCount
	h.PartEntrySize = GPTPartitionEntrySize
	entrySectors := h.entriesSectors(sectorSize)
	h.CurrentLBA = GPTHeaderLBA
	h.BackupLBA = totalSectors - 1
	h.StartingLBAForPartEntries = GPTEntriesLBA
	h.FirstUsableLBA = GPTEntriesLBA + entrySectors
	h.LastUsableLBA = totalSectors - 2 - entrySectors
	if h.LastUsableLBA <= h.FirstUsableLBA {
		return nil, errors.Errorf("disk of %d sectors is too small for GPT", totalSectors)
	}
	h.GUID = NewRandomGUID()
	gpt.PartitionEntries = make([]GPTPartitionEntry, GPTPartitionEntryCount)
	gpt.markIndex()
	return gpt, nil
}

// ReadGPT 读取位于headerLBA的GPT表头及其分区表项, 并校验签名与CRC.
func ReadGPT(r io.ReaderAt, sectorSize, headerLBA int64) (*GPT, error) {
	sector := make([]byte, sectorSize)
	if _, err := r.ReadAt(sector, headerLBA*sectorSize); err != nil {
		return nil, errors.Wrapf(err, "read GPT header at LBA %d", headerLBA)
	}
	gpt := &GPT{SectorSize: sectorSize}
	if err := struc.Unpack(bytes.NewReader(sector[:GPTHeaderSize]), &gpt.Header); err != nil {
		return nil, errors.Wrap(err, "unpack GPT header")
	}
	h := &gpt.Header
	if h.SignatureString() != GPTSignature {
		return nil, errors.Errorf("invalid GPT signature at LBA %d", headerLBA)
	}
	if h.HeaderSize < GPTHeaderSize || int64(h.HeaderSize) > sectorSize {
		return nil, errors.Errorf("invalid GPT header size %d", h.HeaderSize)
	}
	raw := make([]byte, h.HeaderSize)
	copy(raw, sector[:h.HeaderSize])
	copy(raw[0x10:0x14], []byte{0, 0, 0, 0})
	if crc32.ChecksumIEEE(raw) != h.HeaderCRC32 {
		return nil, errors.Errorf("GPT header CRC mismatch at LBA %d", headerLBA)
	}
	if h.PartEntrySize < GPTPartitionEntrySize || h.NumberOfPartEntries == 0 || h.NumberOfPartEntries > 1024 {
		return nil, errors.Errorf("unsupported GPT entry array %dx%d", h.NumberOfPartEntries, h.PartEntrySize)
	}

	entries := make([]byte, int64(h.NumberOfPartEntries)*int64(h.PartEntrySize))
	if _, err := r.ReadAt(entries, h.StartingLBAForPartEntries*sectorSize); err != nil {
		return nil, errors.Wrapf(err, "read GPT entries at LBA %d", h.StartingLBAForPartEntries)
	}
	if crc32.ChecksumIEEE(entries) != h.PartEntriesCRC32 {
		return nil, errors.Errorf("GPT entry array CRC mismatch at LBA %d", h.StartingLBAForPartEntries)
	}
	gpt.PartitionEntries = make([]GPTPartitionEntry, h.NumberOfPartEntries)
	for i := range gpt.PartitionEntries {
		off := i * int(h.PartEntrySize)
		chunk := bytes.NewReader(entries[off : off+GPTPartitionEntrySize])
		if err := struc.Unpack(chunk, &gpt.PartitionEntries[i]); err != nil {
			return nil, errors.Wrapf(err, "unpack GPT entry %d", i+1)
		}
	}
	gpt.markIndex()
	return gpt, nil
}

// ReadGPTWithBackup 优先读取主GPT, 主GPT损坏时回退至位于最后一个扇区的备份GPT.
func ReadGPTWithBackup(r io.ReaderAt, sectorSize, totalSectors int64) (*GPT, error) {
	primary, err := ReadGPT(r, sectorSize, GPTHeaderLBA)
	if err == nil {
		return primary, nil
	}
	backup, errBackup := ReadGPT(r, sectorSize, totalSectors-1)
	if errBackup != nil {
		return nil, errors.Wrapf(err, "backup GPT unusable too (%v)", errBackup)
	}
	return backup.Backup(), nil
}

func (gpt *GPT) markIndex() {
	for i := range gpt.PartitionEntries {
		gpt.PartitionEntries[i].Index = i + 1
	}
}

// Backup 返回互换主备位置后的GPT副本: 主表得到备份表, 备份表得到主表.
func (gpt *GPT) Backup() *GPT {
	b := &GPT{SectorSize: gpt.SectorSize, Header: gpt.Header}
	b.PartitionEntries = append([]GPTPartitionEntry(nil), gpt.PartitionEntries...)
	b.Header.CurrentLBA, b.Header.BackupLBA = gpt.Header.BackupLBA, gpt.Header.CurrentLBA
	if b.Header.CurrentLBA == GPTHeaderLBA {
		b.Header.StartingLBAForPartEntries = GPTEntriesLBA
	} else {
		b.Header.StartingLBAForPartEntries = b.Header.LastUsableLBA + 1
	}
	return b
}

// PackEntries 序列化分区表项数组.
func (gpt *GPT) PackEntries() ([]byte, error) {
	size := int(gpt.Header.PartEntrySize)
	out := make([]byte, len(gpt.PartitionEntries)*size)
	for i := range gpt.PartitionEntries {
		buf := new(bytes.Buffer)
		if err := struc.Pack(buf, &gpt.PartitionEntries[i]); err != nil {
			return nil, errors.Wrapf(err, "pack GPT entry %d", i+1)
		}
		copy(out[i*size:], buf.Bytes())
	}
	return out, nil
}

// PackHeader 依据entries重新计算两个CRC并序列化表头, 结果长度为一个扇区.
func (gpt *GPT) PackHeader(entries []byte) ([]byte, error) {
	h := &gpt.Header
	h.HeaderSize = GPTHeaderSize
	h.PartEntriesCRC32 = crc32.ChecksumIEEE(entries)
	h.HeaderCRC32 = 0
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, h); err != nil {
		return nil, errors.Wrap(err, "pack GPT header")
	}
	h.HeaderCRC32 = crc32.ChecksumIEEE(buf.Bytes()[:h.HeaderSize])
	buf.Reset()
	if err := struc.Pack(buf, h); err != nil {
		return nil, errors.Wrap(err, "pack GPT header")
	}
	sector := make([]byte, gpt.SectorSize)
	copy(sector, buf.Bytes())
	return sector, nil
}

// WriteTo 写入主GPT与备份GPT(表头及表项), 不含保护性MBR.
func (gpt *GPT) WriteTo(w io.WriterAt) error {
	for _, g := range []*GPT{gpt, gpt.Backup()} {
		entries, err := g.PackEntries()
		if err != nil {
			return err
		}
		header, err := g.PackHeader(entries)
		if err != nil {
			return err
		}
		padded := make([]byte, g.Header.entriesSectors(g.SectorSize)*g.SectorSize)
		copy(padded, entries)
		if _, err = w.WriteAt(padded, g.Header.StartingLBAForPartEntries*g.SectorSize); err != nil {
			return errors.Wrapf(err, "write GPT entries at LBA %d", g.Header.StartingLBAForPartEntries)
		}
		if _, err = w.WriteAt(header, g.Header.CurrentLBA*g.SectorSize); err != nil {
			return errors.Wrapf(err, "write GPT header at LBA %d", g.Header.CurrentLBA)
		}
	}
	return nil
}

// NewProtectiveMBR 为共totalSectors个扇区的GPT磁盘构造保护性MBR.
func NewProtectiveMBR(totalSectors int64) *MBR {
	mbr := NewEmptyMBR()
	size := totalSectors - 1
	if size > MBRMaxLBA {
		size = MBRMaxLBA
	}
	p := MBRPartition{
		Index:         1,
		PartitionType: EFIGPTProtectiveMBR,
		StartingLBA:   1,
		TotalSectors:  size,
	}
	p.SetCHS(1, size)
	mbr.FullMainPartitionEntries[0] = p
	return mbr
}

// JSONFormat 以JSON格式获取显示输出.
//
// 示例:
// ```
//
//	{
//	  "disk_label_type": "GPT",
//	  "disk_identifier": "B2D588EC-966D-445B-BAB3-846CE330166B",
//	  "sector_size": 512,
//	  "first_usable_sector": 34,
//	  "last_usable_sector": 20971486,
//	  "parts": [
//	    {"index": 1, "start_sector": 2048, "end_sector": 22527, "sectors": 20480, "size": 10485760,
//	     "type": "0FC63DAF-8483-4772-8E79-3D69D8477DE4", "type_desc": "Linux filesystem", "name": ""}
//	  ]
//	}
//
// ```
func (gpt *GPT) JSONFormat() (o string, err error) {
	header := map[string]any{
		"disk_label_type":     string(DTypeGPT),
		"disk_identifier":     gpt.Header.GUIDInMixedEndian(),
		"sector_size":         gpt.SectorSize,
		"first_usable_sector": gpt.Header.FirstUsableLBA,
		"last_usable_sector":  gpt.Header.LastUsableLBA,
		"entries":             gpt.Header.NumberOfPartEntries,
	}
	o = "{}"
	for _, k := range []string{"disk_label_type", "disk_identifier", "sector_size",
		"first_usable_sector", "last_usable_sector", "entries"} {
		if o, err = sjson.Set(o, k, header[k]); err != nil {
			return "", err
		}
	}
	if o, err = sjson.SetRaw(o, "parts", "[]"); err != nil {
		return "", err
	}
	for _, p := range gpt.PartitionEntries {
		if p.IsEmpty() {
			continue
		}
		sectors := p.LastLBAIndex - p.FirstLBAIndex + 1
		part := map[string]any{
			"index":        p.Index,
			"start_sector": p.FirstLBAIndex,
			"end_sector":   p.LastLBAIndex,
			"sectors":      sectors,
			"size":         sectors * gpt.SectorSize,
			"type":         p.PartTypeGUIDInMixedEndian(),
			"type_desc":    p.PartTypeDesc(),
			"name":         p.DecodedPartitionName(),
		}
		if o, err = sjson.Set(o, "parts.-1", part); err != nil {
			return "", err
		}
	}
	return o, nil
}

// DebugFormat 以Debug模式获取显示输出.
func (gpt *GPT) DebugFormat() string {
	lines := []string{
		"Found valid GPT.",
		fmt.Sprintf("Disk identifier <GUID>: %s", gpt.Header.GUIDInMixedEndian()),
		fmt.Sprintf("Partition table holds up to %d entries", gpt.Header.NumberOfPartEntries),
		fmt.Sprintf("First usable sector is %d, last usable sector is %d",
			gpt.Header.FirstUsableLBA, gpt.Header.LastUsableLBA),
		"",
		fmt.Sprintf("%6s %15s %15s %15s    %s", "Number", "Start", "End", "Size", "Type"),
	}
	for _, p := range gpt.PartitionEntries {
		if p.IsEmpty() {
			continue
		}
		size := uint64((p.LastLBAIndex - p.FirstLBAIndex + 1) * gpt.SectorSize)
		lines = append(lines, fmt.Sprintf("%6d %15d %15d %15s    %s",
			p.Index, p.FirstLBAIndex, p.LastLBAIndex, humanize.IBytes(size), p.PartTypeDesc()))
	}
	return strings.Join(lines, "\n")
}
