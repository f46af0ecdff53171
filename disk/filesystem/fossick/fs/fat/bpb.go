// Package fat 解析FAT12/16/32的BIOS参数块.
package fat

import (
	"bytes"
	"io"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	BootSectorSize   = 512
	fat16TypeOffset  = 0x36
	fat32TypeOffset  = 0x52
	bootSignatureOff = 0x1FE
)

// BPB 引导扇区中的BIOS参数块, 所有字段均为小端序.
type BPB struct {
	JmpBoot           [3]byte `struc:"[3]byte"`       // 0x00
	OEMName           [8]byte `struc:"[8]byte"`       // 0x03
	BytesPerSector    uint16  `struc:"uint16,little"` // 0x0B
	SectorsPerCluster uint8   `struc:"uint8"`         // 0x0D
	ReservedSectors   uint16  `struc:"uint16,little"` // 0x0E
	NumFATs           uint8   `struc:"uint8"`         // 0x10
	RootEntries       uint16  `struc:"uint16,little"` // 0x11
	TotalSectors16    uint16  `struc:"uint16,little"` // 0x13
	Media             uint8   `struc:"uint8"`         // 0x15
	FATSize16         uint16  `struc:"uint16,little"` // 0x16
	SectorsPerTrack   uint16  `struc:"uint16,little"` // 0x18
	NumHeads          uint16  `struc:"uint16,little"` // 0x1A
	HiddenSectors     uint32  `struc:"uint32,little"` // 0x1C
	TotalSectors32    uint32  `struc:"uint32,little"` // 0x20
	FATSize32         uint32  `struc:"uint32,little"` // 0x24, 仅FAT32.
}

// ReadBPB 读取并校验r起点处的FAT引导扇区.
func ReadBPB(r io.ReaderAt) (*BPB, error) {
	boot := make([]byte, BootSectorSize)
	if _, err := r.ReadAt(boot, 0); err != nil {
		return nil, errors.Wrap(err, "read fat boot sector")
	}
	if boot[bootSignatureOff] != 0x55 || boot[bootSignatureOff+1] != 0xAA {
		return nil, errors.New("fat boot sector has no 0x55AA signature")
	}
	if !strings.HasPrefix(string(boot[fat16TypeOffset:fat16TypeOffset+8]), "FAT") &&
		!strings.HasPrefix(string(boot[fat32TypeOffset:fat32TypeOffset+8]), "FAT32") {
		return nil, errors.New("fat boot sector has no file system type label")
	}
	bpb := new(BPB)
	if err := struc.Unpack(bytes.NewReader(boot), bpb); err != nil {
		return nil, errors.Wrap(err, "unpack fat boot sector")
	}
	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, errors.Errorf("invalid fat bytes per sector %d", bpb.BytesPerSector)
	}
	if spc := bpb.SectorsPerCluster; spc == 0 || spc&(spc-1) != 0 {
		return nil, errors.Errorf("invalid fat sectors per cluster %d", spc)
	}
	if bpb.NumFATs == 0 || bpb.ReservedSectors == 0 {
		return nil, errors.New("fat boot sector reports no FAT")
	}
	if bpb.TotalSectors() == 0 {
		return nil, errors.New("fat boot sector reports no sectors")
	}
	return bpb, nil
}

func (bpb *BPB) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, bpb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (bpb *BPB) TotalSectors() int64 {
	if bpb.TotalSectors16 != 0 {
		return int64(bpb.TotalSectors16)
	}
	return int64(bpb.TotalSectors32)
}

// Size 文件系统占用的字节数.
func (bpb *BPB) Size() int64 {
	return bpb.TotalSectors() * int64(bpb.BytesPerSector)
}
