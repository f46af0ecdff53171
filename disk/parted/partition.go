package parted

import (
	"fmt"
	"strings"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick"
	"github.com/kisun-bit/undelpart/disk/table"
)

// PartitionType 分区类型位标志.
type PartitionType int

const (
	PartitionNormal    PartitionType = 0
	PartitionLogical   PartitionType = 1 << 0
	PartitionExtended  PartitionType = 1 << 1
	PartitionFreeSpace PartitionType = 1 << 2
	PartitionMetadata  PartitionType = 1 << 3
)

func (t PartitionType) Has(flag PartitionType) bool {
	return t&flag != 0
}

func (t PartitionType) String() string {
	if t == PartitionNormal {
		return "primary"
	}
	var names []string
	if t.Has(PartitionLogical) {
		names = append(names, "logical")
	}
	if t.Has(PartitionExtended) {
		names = append(names, "extended")
	}
	if t.Has(PartitionFreeSpace) {
		names = append(names, "free")
	}
	if t.Has(PartitionMetadata) {
		names = append(names, "metadata")
	}
	return strings.Join(names, ",")
}

// Partition 分区表中的一个分区, 或布局中的空闲/元数据区域(编号为-1).
type Partition struct {
	Num  int
	Type PartitionType
	Geom Geometry
	Fs   fossick.Filesystem // 已探测到的文件系统, 未知时为空.

	// MBR 属性.
	SystemType table.MBRPartitionType
	Bootable   bool

	// GPT 属性.
	TypeGUID [16]byte
	UniqGUID [16]byte
	Name     string
	Attrs    uint64

	disk *Disk
}

// IsActive 若为真实分区(非空闲区、非元数据区), 则返回true.
func (p *Partition) IsActive() bool {
	return !p.Type.Has(PartitionFreeSpace) && !p.Type.Has(PartitionMetadata)
}

func (p *Partition) Disk() *Disk {
	return p.disk
}

// TypeDesc 返回分区类型的可读描述.
func (p *Partition) TypeDesc() string {
	if p.disk != nil && p.disk.Type() == table.DTypeGPT {
		e := table.GPTPartitionEntry{PartTypeGUID: p.TypeGUID}
		return e.PartTypeDesc()
	}
	e := table.MBRPartition{PartitionType: p.SystemType}
	return e.HumanReadablePartitionType()
}

func (p *Partition) String() string {
	return fmt.Sprintf("%d %s %s", p.Num, p.Type, p.Geom)
}

func (p *Partition) clone(d *Disk) *Partition {
	c := *p
	c.disk = d
	return &c
}
