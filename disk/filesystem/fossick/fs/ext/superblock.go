package ext

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	EXT234SuperBlockStartOff = 1024
	EXT234SuperBlockSize     = 1024
	EXT234Magic              = 0xEF53

	// FeatureIncompat64Bit 块数量高32位(s_blocks_count_hi)有效.
	FeatureIncompat64Bit = 0x80
	maxLogBlockSize      = 6
)

// Superblock EXT2/3/4超级块的前部字段, 位于文件系统偏移1024处, 所有字段均为小端序.
//
// 参考:
// 1. https://www.kernel.org/doc/html/latest/filesystems/ext4/globals.html.
// 2. https://ext4.wiki.kernel.org/index.php/Ext4_Disk_Layout.
type Superblock struct {
	InodesCount       uint32   `struc:"uint32,little"` // 0x00
	BlocksCountLo     uint32   `struc:"uint32,little"` // 0x04
	RBlocksCountLo    uint32   `struc:"uint32,little"` // 0x08
	FreeBlocksCountLo uint32   `struc:"uint32,little"` // 0x0C
	FreeInodesCount   uint32   `struc:"uint32,little"` // 0x10
	FirstDataBlock    uint32   `struc:"uint32,little"` // 0x14
	LogBlockSize      uint32   `struc:"uint32,little"` // 0x18, 块大小 = 1024 << LogBlockSize.
	LogClusterSize    uint32   `struc:"uint32,little"` // 0x1C
	BlocksPerGroup    uint32   `struc:"uint32,little"` // 0x20
	ClustersPerGroup  uint32   `struc:"uint32,little"` // 0x24
	InodesPerGroup    uint32   `struc:"uint32,little"` // 0x28
	Mtime             uint32   `struc:"uint32,little"` // 0x2C
	Wtime             uint32   `struc:"uint32,little"` // 0x30
	MntCount          uint16   `struc:"uint16,little"` // 0x34
	MaxMntCount       uint16   `struc:"uint16,little"` // 0x36
	Magic             uint16   `struc:"uint16,little"` // 0x38
	State             uint16   `struc:"uint16,little"` // 0x3A
	Errors            uint16   `struc:"uint16,little"` // 0x3C
	MinorRevLevel     uint16   `struc:"uint16,little"` // 0x3E
	LastCheck         uint32   `struc:"uint32,little"` // 0x40
	CheckInterval     uint32   `struc:"uint32,little"` // 0x44
	CreatorOS         uint32   `struc:"uint32,little"` // 0x48
	RevLevel          uint32   `struc:"uint32,little"` // 0x4C
	DefResuid         uint16   `struc:"uint16,little"` // 0x50
	DefResgid         uint16   `struc:"uint16,little"` // 0x52
	FirstIno          uint32   `struc:"uint32,little"` // 0x54
	InodeSize         uint16   `struc:"uint16,little"` // 0x58
	BlockGroupNr      uint16   `struc:"uint16,little"` // 0x5A
	FeatureCompat     uint32   `struc:"uint32,little"` // 0x5C
	FeatureIncompat   uint32   `struc:"uint32,little"` // 0x60
	FeatureRoCompat   uint32   `struc:"uint32,little"` // 0x64
	UUID              [16]byte `struc:"[16]byte"`      // 0x68
	VolumeName        [16]byte `struc:"[16]byte"`      // 0x78
	Pad0x88           []byte   `struc:"[200]pad"`      // 0x88
	BlocksCountHi     uint32   `struc:"uint32,little"` // 0x150
}

// ReadSuperblock 读取并校验r中的EXT2/3/4超级块, r的起点为文件系统起点.
func ReadSuperblock(r io.ReaderAt) (*Superblock, error) {
	raw := make([]byte, EXT234SuperBlockSize)
	n, err := r.ReadAt(raw, EXT234SuperBlockStartOff)
	if err != nil {
		return nil, errors.Errorf("failed to read super block of ext2/3/4, %v", err)
	}
	if n != EXT234SuperBlockSize {
		return nil, errors.Errorf("invalid size(%v) of super block", n)
	}
	sb := new(Superblock)
	if err = struc.Unpack(bytes.NewReader(raw), sb); err != nil {
		return nil, errors.Wrap(err, "unpack ext2/3/4 super block")
	}
	if sb.Magic != EXT234Magic {
		return nil, errors.Errorf("invalid ext2/3/4 magic %#x", sb.Magic)
	}
	if sb.LogBlockSize > maxLogBlockSize {
		return nil, errors.Errorf("invalid ext2/3/4 block size exponent %d", sb.LogBlockSize)
	}
	if sb.BlocksCount() == 0 || sb.BlocksPerGroup == 0 {
		return nil, errors.New("ext2/3/4 super block reports no blocks")
	}
	return sb, nil
}

// Pack 序列化超级块, 结果不足1024字节的部分由调用方补零.
func (sb *Superblock) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, sb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (sb *Superblock) BlockSize() int64 {
	return 1024 << sb.LogBlockSize
}

func (sb *Superblock) BlocksCount() uint64 {
	n := uint64(sb.BlocksCountLo)
	if sb.FeatureIncompat&FeatureIncompat64Bit != 0 {
		n |= uint64(sb.BlocksCountHi) << 32
	}
	return n
}

// Size 文件系统占用的字节数.
func (sb *Superblock) Size() int64 {
	return int64(sb.BlocksCount()) * sb.BlockSize()
}
