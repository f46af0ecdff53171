package table

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

// MBR MBR磁盘信息结构.
// 具体见 https://en.wikipedia.org/wiki/Master_boot_record.
// 参考现代MBR结构节(`Structure of a modern standard MBR`)的描述.
type MBR struct {
	IsEBR                    bool                                 `struc:"skip"`      // 若此MBR为EBR时, 此字段为true.
	Sector                   int64                                `struc:"skip"`      // MBR所在扇区.
	BootLoader               [446]byte                            `struc:"[446]byte"` // 0x0000, 446.
	FullMainPartitionEntries [MBRPartitionEntryCount]MBRPartition // 0x01BE, 64, 所有多字节字段均为小端序.
	BootSignature            [2]byte                              `struc:"[2]byte"` // 0x01FE, 2.
}

// EBR MBR磁盘扩展BootRecorder信息结构.
// 具体见 https://en.wikipedia.org/wiki/Extended_boot_record.
// 值得说明的是, 有以下几点:
//  1. 每一个逻辑分区均持有一个EBR, 且EBR位于它所描述的逻辑分区之前.
//  2. EBR的第1个表项: StartingLBA=逻辑分区首扇区相对于本EBR扇区的偏移, TotalSectors=逻辑分区总扇区数.
//  3. EBR的第2个表项: StartingLBA=下一个EBR相对于扩展分区起始扇区的偏移,
//     TotalSectors=下一个EBR扇区至下一个逻辑分区结束扇区之间的扇区总数.
//  4. 第3、4表项未使用.
type EBR = MBR

// LogicalPartition 逻辑分区, 其 StartingLBA 已修正为绝对LBA.
type LogicalPartition struct {
	MBRPartition
	EBRSector int64 // 描述此逻辑分区的EBR所在扇区.
}

// NewEmptyMBR 创建一个仅含引导签名的空MBR.
func NewEmptyMBR() *MBR {
	mbr := new(MBR)
	mbr.BootSignature = [2]byte{MBRSignature510, MBRSignature511}
	mbr.markIndexToMainPart()
	return mbr
}

// ReadMBR 解析位于sector扇区的MBR(或EBR).
func ReadMBR(r io.ReaderAt, sector, sectorSize int64, isEBR bool) (*MBR, error) {
	bin := make([]byte, MBRDefaultLBASize)
	if _, err := r.ReadAt(bin, sector*sectorSize); err != nil {
		return nil, errors.Wrapf(err, "read boot record at sector %d", sector)
	}
	return ParseMBR(bin, sector, isEBR)
}

// ParseMBR 从512字节数据中解析MBR.
func ParseMBR(bin []byte, sector int64, isEBR bool) (*MBR, error) {
	if len(bin) < MBRDefaultLBASize {
		return nil, errors.Errorf("boot record needs %d bytes, got %d", MBRDefaultLBASize, len(bin))
	}
	mbr := new(MBR)
	if err := struc.Unpack(bytes.NewReader(bin[:MBRDefaultLBASize]), mbr); err != nil {
		return nil, errors.Wrap(err, "unpack boot record")
	}
	if !mbr.IsValid() {
		return nil, errors.Errorf("invalid boot signature %#x at sector %d", mbr.BootSignature, sector)
	}
	mbr.IsEBR = isEBR
	mbr.Sector = sector
	mbr.markIndexToMainPart()
	return mbr, nil
}

// Pack 序列化为512字节.
func (mbr *MBR) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, mbr); err != nil {
		return nil, errors.Wrap(err, "pack boot record")
	}
	if buf.Len() != MBRDefaultLBASize {
		return nil, errors.Errorf("packed boot record is %d bytes", buf.Len())
	}
	return buf.Bytes(), nil
}

// Hexdump 返回MBR/EBR的hexdump格式输出.
func (mbr *MBR) Hexdump() string {
	bin, err := mbr.Pack()
	if err != nil {
		return err.Error()
	}
	return hex.Dump(bin)
}

// IsValid 若为有效BR, 则返回true.
func (mbr *MBR) IsValid() bool {
	return mbr.BootSignature[0] == MBRSignature510 && mbr.BootSignature[1] == MBRSignature511
}

// IsProtective 若为GPT磁盘的保护性MBR, 则返回true.
func (mbr *MBR) IsProtective() bool {
	for _, p := range mbr.FullMainPartitionEntries {
		if p.IsProtectiveMBR() {
			return true
		}
	}
	return false
}

// DiskSignature 返回32位磁盘标识.
func (mbr *MBR) DiskSignature() uint32 {
	return binary.LittleEndian.Uint32(mbr.BootLoader[MBRDiskSignatureOffset : MBRDiskSignatureOffset+4])
}

// SetDiskSignature 设置32位磁盘标识.
func (mbr *MBR) SetDiskSignature(sig uint32) {
	binary.LittleEndian.PutUint32(mbr.BootLoader[MBRDiskSignatureOffset:MBRDiskSignatureOffset+4], sig)
}

// ExtendedEntry 返回主扩展分区表项, 不存在时ok为false.
func (mbr *MBR) ExtendedEntry() (p MBRPartition, ok bool) {
	if mbr.IsEBR {
		return p, false
	}
	for _, e := range mbr.FullMainPartitionEntries {
		if e.IsExtend() {
			return e, true
		}
	}
	return p, false
}

// MainPartitionEntries 获取所有非空主分区表项(含扩展分区).
func (mbr *MBR) MainPartitionEntries() []MBRPartition {
	mps := make([]MBRPartition, 0)
	for _, mp := range mbr.FullMainPartitionEntries {
		if !mp.IsEmpty() {
			mps = append(mps, mp)
		}
	}
	return mps
}

// markIndexToMainPart 为主分区表项标记分区索引, 即表项序号(1-4).
func (mbr *MBR) markIndexToMainPart() {
	for mpi := 1; mpi <= MBRPartitionEntryCount; mpi++ {
		mbr.FullMainPartitionEntries[mpi-1].Index = mpi
	}
}

// ReadEBRChain 沿扩展分区ext的EBR链读取所有逻辑分区.
// 逻辑分区按链上顺序编号(5, 6, ...), 链上出现环或越界时返回错误.
func ReadEBRChain(r io.ReaderAt, ext MBRPartition, sectorSize int64) ([]LogicalPartition, error) {
	lps := make([]LogicalPartition, 0)
	visited := make(map[int64]struct{})
	ebrSector := ext.StartingLBA
	for {
		if _, seen := visited[ebrSector]; seen {
			return nil, errors.Errorf("EBR chain loops back to sector %d", ebrSector)
		}
		if ebrSector < ext.StartingLBA || ebrSector > ext.EndSector() {
			return nil, errors.Errorf("EBR at sector %d lies outside the extended partition", ebrSector)
		}
		if len(visited) >= MBRMaxLogicalPartitions {
			return nil, errors.Errorf("EBR chain longer than %d", MBRMaxLogicalPartitions)
		}
		visited[ebrSector] = struct{}{}

		ebr, err := ReadMBR(r, ebrSector, sectorSize, true)
		if err != nil {
			// 扩展分区内尚无逻辑分区时, 首个EBR可能全零.
			if len(lps) == 0 && ebrSector == ext.StartingLBA {
				return lps, nil
			}
			return nil, err
		}
		data := ebr.FullMainPartitionEntries[MBRLogicalPartitionEntryIndex]
		next := ebr.FullMainPartitionEntries[MBREBRPartitionEntryIndex]
		if !data.IsEmpty() {
			data.StartingLBA += ebrSector
			data.IsLogical = true
			data.Index = MBRPartitionEntryCount + len(lps) + 1
			lps = append(lps, LogicalPartition{MBRPartition: data, EBRSector: ebrSector})
		}
		if !next.IsExtend() || next.StartingLBA == 0 {
			break
		}
		ebrSector = ext.StartingLBA + next.StartingLBA
	}
	return lps, nil
}

// NewEBR 构造描述逻辑分区lp的EBR.
// nextEBR为下一个EBR所在扇区, nextEnd为下一个逻辑分区的结束扇区, 无后继时nextEBR传0.
func NewEBR(lp LogicalPartition, extStart, nextEBR, nextEnd int64) *EBR {
	ebr := NewEmptyMBR()
	ebr.IsEBR = true
	ebr.Sector = lp.EBRSector

	data := lp.MBRPartition
	data.IsLogical = false
	data.StartingLBA = lp.StartingLBA - lp.EBRSector
	data.SetCHS(lp.StartingLBA, lp.EndSector())
	ebr.FullMainPartitionEntries[MBRLogicalPartitionEntryIndex] = data

	if nextEBR > 0 {
		link := MBRPartition{
			PartitionType: ExtendCHS,
			StartingLBA:   nextEBR - extStart,
			TotalSectors:  nextEnd - nextEBR + 1,
		}
		link.SetCHS(nextEBR, nextEnd)
		ebr.FullMainPartitionEntries[MBREBRPartitionEntryIndex] = link
	}
	ebr.markIndexToMainPart()
	return ebr
}

// JSONFormat 以JSON格式获取显示输出, logicals为 ReadEBRChain 的结果.
//
// 示例:
// ```
//
//	{
//	  "disk_label_type": "MBR",
//	  "disk_identifier": "0e772c1a",
//	  "sector_size": 512,
//	  "parts": [
//	    {"index": 1, "start_sector": 2048, "end_sector": 2099199, "sectors": 2097152,
//	     "size": 1073741824, "boot": true, "type": "83", "type_desc": "Linux"}
//	  ]
//	}
//
// ```
func (mbr *MBR) JSONFormat(sectorSize int64, logicals []LogicalPartition) (o string, err error) {
	o = "{}"
	if o, err = sjson.Set(o, "disk_label_type", string(DTypeMBR)); err != nil {
		return "", err
	}
	if o, err = sjson.Set(o, "disk_identifier", fmt.Sprintf("%08x", mbr.DiskSignature())); err != nil {
		return "", err
	}
	if o, err = sjson.Set(o, "sector_size", sectorSize); err != nil {
		return "", err
	}
	if o, err = sjson.SetRaw(o, "parts", "[]"); err != nil {
		return "", err
	}
	mps := mbr.MainPartitionEntries()
	for _, lp := range logicals {
		mps = append(mps, lp.MBRPartition)
	}
	for _, mp := range mps {
		part := map[string]any{
			"index":        mp.Index,
			"start_sector": mp.StartingLBA,
			"end_sector":   mp.EndSector(),
			"sectors":      mp.TotalSectors,
			"size":         mp.TotalSectors * sectorSize,
			"boot":         mp.IsBootable(),
			"type":         fmt.Sprintf("%02x", mp.PartitionType),
			"type_desc":    mp.HumanReadablePartitionType(),
		}
		if o, err = sjson.Set(o, "parts.-1", part); err != nil {
			return "", err
		}
	}
	return o, nil
}

// DebugFormat 以Debug模式获取显示输出.
//
// 示例:
// ```
// Found valid MBR.
// Disk identifier <32-bit Signature>: 0e772c1a
//
// Number Boot      Start        End             Size    System
//
//	1    *       2048    2099199         1.0 GiB    Linux
//	2         2099200   83886079          39 GiB    Linux LVM
//
// ```
func (mbr *MBR) DebugFormat(sectorSize int64, logicals []LogicalPartition) string {
	lines := []string{
		"Found valid MBR.",
		fmt.Sprintf("Disk identifier <32-bit Signature>: %08x", mbr.DiskSignature()),
		"",
		fmt.Sprintf("%6s %4s %10s %10s %15s    %s", "Number", "Boot", "Start", "End", "Size", "System"),
	}
	mps := mbr.MainPartitionEntries()
	for _, lp := range logicals {
		mps = append(mps, lp.MBRPartition)
	}
	for _, p := range mps {
		bootFlag := " "
		if p.IsBootable() {
			bootFlag = "*"
		}
		lines = append(lines, fmt.Sprintf("%6d %4s %10d %10d %15s    %s",
			p.Index, bootFlag, p.StartingLBA, p.EndSector(),
			humanize.IBytes(uint64(p.TotalSectors*sectorSize)), p.HumanReadablePartitionType()))
	}
	return strings.Join(lines, "\n")
}

// MBRPartition MBR磁盘的主分区表项结构.
type MBRPartition struct {
	// Index 分区在分区表中的索引位置, 主分区为1-4, 逻辑分区自5起.
	Index            int              `struc:"skip"`
	IsLogical        bool             `struc:"skip"` // 若为逻辑分区, 此字段为true.
	BootIndicator    byte             // 0x00, 1.
	StartingHead     byte             // 0x01, 1.
	StartingSector   byte             // 0x02, 1, bit0-5表示起始扇区, bit6-7位表示起始柱面的高位.
	StartingCylinder byte             // 0x03, 1.
	PartitionType    MBRPartitionType `struc:"byte"` // 0x04, 1.
	EndingHead       byte             // 0x05, 1.
	EndingSector     byte             // 0x06, 1, bit0-5表示结束扇区, bit6-7位表示结束柱面的高位.
	EndingCylinder   byte             // 0x07, 1.
	StartingLBA      int64            `struc:"uint32,little"` // 0x08, 4, 起始LBA(包含).
	TotalSectors     int64            `struc:"uint32,little"` // 0x0c, 4, 总扇区数.
}

// HumanReadablePartitionType 返回该分区用户可读的分区类型.
func (partition MBRPartition) HumanReadablePartitionType() string {
	v, ok := MBRPartitionTypeDesc[partition.PartitionType]
	if !ok {
		return "unknown"
	}
	return v
}

// IsEmpty 若为空分区, 则返回true.
func (partition MBRPartition) IsEmpty() bool {
	return partition.PartitionType == Empty || partition.TotalSectors == 0
}

// IsBootable 若为可启动分区, 则返回true.
func (partition MBRPartition) IsBootable() bool {
	return partition.BootIndicator == MBRPartitionBootable
}

// EndSector 分区的结束扇区(包含).
func (partition MBRPartition) EndSector() int64 {
	return partition.StartingLBA + partition.TotalSectors - 1
}

// IsExtend 若为扩展分区, 则返回true.
func (partition MBRPartition) IsExtend() bool {
	return bytes.IndexByte(MBRExtendPartTypes, partition.PartitionType) >= 0
}

// IsProtectiveMBR 若为GPT磁盘的保护性MBR分区, 则返回true.
func (partition MBRPartition) IsProtectiveMBR() bool {
	return partition.PartitionType == EFIGPTProtectiveMBR
}

// SetCHS 依据LBA填充CHS地址(255磁头, 63扇区/磁道), 超出CHS寻址范围时使用 0xFE/0xFF/0xFF.
func (partition *MBRPartition) SetCHS(startLBA, endLBA int64) {
	partition.StartingHead, partition.StartingSector, partition.StartingCylinder = lbaToCHS(startLBA)
	partition.EndingHead, partition.EndingSector, partition.EndingCylinder = lbaToCHS(endLBA)
}

func lbaToCHS(lba int64) (head, sector, cylinder byte) {
	const heads, sectors = 255, 63
	c := lba / (heads * sectors)
	if c > 1023 {
		return 0xFE, 0xFF, 0xFF
	}
	h := (lba / sectors) % heads
	s := lba%sectors + 1
	return byte(h), byte(s) | byte((c>>2)&0xC0), byte(c & 0xFF)
}
