package btrfs

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	SuperBlockOffset = 0x10000
	SuperBlockSize   = 4096
	Magic            = "_BHRfS_M"
)

// SuperBlock btrfs主超级块的前部字段(至dev_item.total_bytes), 位于64KiB处, 小端序.
type SuperBlock struct {
	Csum              [32]byte `struc:"[32]byte"`      // 0x00
	FSID              [16]byte `struc:"[16]byte"`      // 0x20
	Bytenr            uint64   `struc:"uint64,little"` // 0x30
	Flags             uint64   `struc:"uint64,little"` // 0x38
	Magic             [8]byte  `struc:"[8]byte"`       // 0x40
	Generation        uint64   `struc:"uint64,little"` // 0x48
	Root              uint64   `struc:"uint64,little"` // 0x50
	ChunkRoot         uint64   `struc:"uint64,little"` // 0x58
	LogRoot           uint64   `struc:"uint64,little"` // 0x60
	LogRootTransid    uint64   `struc:"uint64,little"` // 0x68
	TotalBytes        uint64   `struc:"uint64,little"` // 0x70, 全部设备之和.
	BytesUsed         uint64   `struc:"uint64,little"` // 0x78
	RootDirObjectid   uint64   `struc:"uint64,little"` // 0x80
	NumDevices        uint64   `struc:"uint64,little"` // 0x88
	Sectorsize        uint32   `struc:"uint32,little"` // 0x90
	Nodesize          uint32   `struc:"uint32,little"` // 0x94
	Pad0x98           []byte   `struc:"[49]pad"`       // 0x98
	DevItemDevid      uint64   `struc:"uint64,little"` // 0xC9
	DevItemTotalBytes uint64   `struc:"uint64,little"` // 0xD1, 本设备大小.
}

// ReadSuperBlock 读取并校验r中位于64KiB处的btrfs超级块.
func ReadSuperBlock(r io.ReaderAt) (*SuperBlock, error) {
	raw := make([]byte, SuperBlockSize)
	if _, err := r.ReadAt(raw, SuperBlockOffset); err != nil {
		return nil, errors.Wrap(err, "read btrfs super block")
	}
	sb := new(SuperBlock)
	if err := struc.Unpack(bytes.NewReader(raw), sb); err != nil {
		return nil, errors.Wrap(err, "unpack btrfs super block")
	}
	if string(sb.Magic[:]) != Magic {
		return nil, errors.New("invalid btrfs magic")
	}
	if sb.Bytenr != SuperBlockOffset {
		return nil, errors.Errorf("btrfs super block claims bytenr %d", sb.Bytenr)
	}
	if sb.Size() == 0 {
		return nil, errors.New("btrfs super block reports zero size")
	}
	return sb, nil
}

func (sb *SuperBlock) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, sb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size 本设备上文件系统占用的字节数, 单设备时与 TotalBytes 相同.
func (sb *SuperBlock) Size() int64 {
	if sb.DevItemTotalBytes != 0 {
		return int64(sb.DevItemTotalBytes)
	}
	return int64(sb.TotalBytes)
}
