// Package fossicktest 在镜像文件中构造最小可识别的文件系统超级块, 供测试使用.
package fossicktest

import (
	"io"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/btrfs"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/ext"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/fat"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/ntfs"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/swap"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/xfs"
	"github.com/pkg/errors"
)

// Write 在w的off字节处写入一个占用size字节的fs文件系统头.
func Write(fs_ fossick.Filesystem, w io.WriterAt, off, size int64) error {
	switch fs_ {
	case fossick.EXT:
		return WriteExt(w, off, size)
	case fossick.NTFS:
		return WriteNTFS(w, off, size)
	case fossick.FAT:
		return WriteFAT32(w, off, size)
	case fossick.XFS:
		return WriteXFS(w, off, size)
	case fossick.BTRFS:
		return WriteBtrfs(w, off, size)
	case fossick.SWAP:
		return WriteSwap(w, off, size)
	case fossick.JFS:
		_, err := w.WriteAt([]byte(fossick.JFSMagic), off+32<<10)
		return err
	}
	return errors.Errorf("fossicktest: %s is not supported", fs_)
}

// WriteExt 写入ext4超级块, size为1024的整数倍.
func WriteExt(w io.WriterAt, off, size int64) error {
	sb := &ext.Superblock{
		LogBlockSize:  0,
		Magic:         ext.EXT234Magic,
		RevLevel:      1,
		InodeSize:     256,
		InodesCount:   128,
		FeatureCompat: 0x38,
	}
	blockSize := int64(1024)
	if size%4096 == 0 {
		sb.LogBlockSize = 2
		blockSize = 4096
	}
	sb.BlocksCountLo = uint32(size / blockSize)
	sb.BlocksPerGroup = uint32(8 * blockSize)
	sb.InodesPerGroup = sb.InodesCount
	if blockSize == 1024 {
		sb.FirstDataBlock = 1
	}
	bin, err := sb.Pack()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(bin, off+ext.EXT234SuperBlockStartOff)
	return err
}

// WriteNTFS 写入NTFS启动扇区, size为512的整数倍.
func WriteNTFS(w io.WriterAt, off, size int64) error {
	bh := &ntfs.BootHeader{
		JMP:                    [3]byte{0xEB, 0x52, 0x90},
		BytesPerSector:         512,
		SectorsPerCluster:      8,
		MediaDesc:              0xF8,
		SectorsPerTrack:        63,
		NumberOfHeads:          255,
		TotalSectors:           size/512 - 1,
		MFTClusterStartNo:      4,
		MFTMirrClusterStartNo:  2,
		ClustersPerRecord:      -10,
		ClustersPerIndexBuffer: 1,
		EndMarker:              ntfs.EndMarker,
	}
	copy(bh.OEM[:], ntfs.OEMID)
	bin, err := bh.Pack()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(bin, off)
	return err
}

// WriteFAT32 写入FAT32引导扇区, size为512的整数倍.
func WriteFAT32(w io.WriterAt, off, size int64) error {
	bpb := &fat.BPB{
		JmpBoot:           [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		Media:             0xF8,
		TotalSectors32:    uint32(size / 512),
		FATSize32:         uint32(size/512/8*4/512 + 1),
	}
	copy(bpb.OEMName[:], "mkfs.fat")
	bin, err := bpb.Pack()
	if err != nil {
		return err
	}
	sector := make([]byte, fat.BootSectorSize)
	copy(sector, bin)
	copy(sector[0x52:], fossick.FAT32Magic)
	sector[0x1FE], sector[0x1FF] = 0x55, 0xAA
	_, err = w.WriteAt(sector, off)
	return err
}

// WriteXFS 写入XFS超级块, size为4096的整数倍.
func WriteXFS(w io.WriterAt, off, size int64) error {
	sb := &xfs.SuperBlock{
		Blocksize:  4096,
		Dblocks:    uint64(size / 4096),
		Agcount:    4,
		Agblocks:   uint32(size / 4096 / 4),
		Versionnum: 0xB4A5,
		Sectsize:   512,
	}
	copy(sb.Magicnum[:], xfs.XFSMagic)
	bin, err := sb.Pack()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(bin, off)
	return err
}

// WriteBtrfs 写入btrfs主超级块.
func WriteBtrfs(w io.WriterAt, off, size int64) error {
	sb := &btrfs.SuperBlock{
		Bytenr:            btrfs.SuperBlockOffset,
		TotalBytes:        uint64(size),
		NumDevices:        1,
		Sectorsize:        4096,
		Nodesize:          16384,
		DevItemDevid:      1,
		DevItemTotalBytes: uint64(size),
	}
	copy(sb.Magic[:], btrfs.Magic)
	bin, err := sb.Pack()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(bin, off+btrfs.SuperBlockOffset)
	return err
}

// WriteSwap 写入页大小为4096的Linux交换分区头.
func WriteSwap(w io.WriterAt, off, size int64) error {
	const pageSize = 4096
	h := &swap.Header{Version: 1, LastPage: uint32(size/pageSize - 1), PageSize: pageSize}
	bin, err := h.Pack()
	if err != nil {
		return err
	}
	if _, err = w.WriteAt(bin, off+1024); err != nil {
		return err
	}
	_, err = w.WriteAt([]byte(swap.MagicV2), off+pageSize-int64(len(swap.MagicV2)))
	return err
}
