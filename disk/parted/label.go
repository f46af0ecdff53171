package parted

import (
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick"
	"github.com/kisun-bit/undelpart/disk/table"
)

// label 分区表类型相关的行为.
type label interface {
	diskType() table.DiskType
	// fresh 初始化空分区表.
	fresh(d *Disk) error
	// read 从设备读取分区表并填充d的分区列表.
	read(d *Disk) error
	// write 将d的分区列表写入设备.
	write(d *Disk) error
	// usable 可放置顶层分区的区域.
	usable(d *Disk) Geometry
	// metadata 顶层元数据区域.
	metadata(d *Disk) []Geometry
	// tableSectors 承载分区表的全部扇区, 用于检测分区表是否被外部修改.
	tableSectors(d *Disk) []int64
	// allocNumber 为新增的非逻辑分区分配编号.
	allocNumber(d *Disk, p *Partition) (int, error)
	// applyFilesystem 依据探测到的文件系统设置分区类型.
	applyFilesystem(p *Partition)
	// check 分区表类型特有的校验.
	check(d *Disk) error
	supportsExtended() bool
	clone() label
}

// newLabel 创建dt类型的空分区表.
func newLabel(dt table.DiskType) (label, bool) {
	switch dt {
	case table.DTypeMBR:
		return &msdosLabel{}, true
	case table.DTypeGPT:
		return &gptLabel{}, true
	}
	return nil, false
}

// systemTypeFor 文件系统对应的MBR分区类型.
func systemTypeFor(fs fossick.Filesystem) table.MBRPartitionType {
	switch fs {
	case fossick.NTFS:
		return table.NTFS
	case fossick.FAT:
		return table.FAT32X
	case fossick.SWAP:
		return table.LinuxSwap
	}
	return table.Linux
}

// typeGUIDFor 文件系统对应的GPT分区类型GUID.
func typeGUIDFor(fs fossick.Filesystem) [16]byte {
	switch fs {
	case fossick.NTFS, fossick.FAT:
		return table.MustGUIDFromString(table.BasicDataPartition)
	case fossick.SWAP:
		return table.MustGUIDFromString(table.SwapPartition)
	}
	return table.MustGUIDFromString(table.LinuxFSData)
}
