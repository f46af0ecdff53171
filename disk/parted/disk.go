package parted

import (
	"sort"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick"
	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Disk 设备上分区表的内存副本, 修改仅在 CommitToDev 之后落盘.
type Disk struct {
	Dev *Device

	label       label
	parts       []*Partition // 真实分区(含扩展分区), 按起始扇区排序.
	fingerprint uint64
	logger      *zap.SugaredLogger
}

// NewDisk 读取设备上的MBR(含EBR链)或GPT分区表.
func NewDisk(dev *Device) (*Disk, error) {
	dt, err := table.GetDiskType(dev, dev.SectorSize)
	if err != nil {
		return nil, errors.Wrapf(err, "probe disk label of %s", dev.Path)
	}
	lb, ok := newLabel(dt)
	if !ok {
		return nil, errors.Wrapf(ErrUnrecognisedLabel, "%s", dev.Path)
	}
	d := &Disk{Dev: dev, label: lb, logger: dev.logger}
	if err = lb.read(d); err != nil {
		return nil, errors.Wrapf(err, "read %s label of %s", dt, dev.Path)
	}
	d.sortPartitions()
	if d.fingerprint, err = d.tableFingerprint(); err != nil {
		return nil, err
	}
	d.logger.Debugf("NewDisk(%s). %s label with %d partitions", dev.Path, dt, len(d.parts))
	return d, nil
}

// NewFreshDisk 在内存中为设备创建dt类型的空分区表, 调用 CommitToDev 后才会写入设备.
func NewFreshDisk(dev *Device, dt table.DiskType) (*Disk, error) {
	lb, ok := newLabel(dt)
	if !ok {
		return nil, errors.Wrapf(ErrUnrecognisedLabel, "%s", dt)
	}
	d := &Disk{Dev: dev, label: lb, logger: dev.logger}
	if err := lb.fresh(d); err != nil {
		return nil, err
	}
	var err error
	if d.fingerprint, err = d.tableFingerprint(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Disk) Type() table.DiskType {
	return d.label.diskType()
}

// Duplicate 返回分区表的独立副本, 对副本的修改不影响d, 二者共用同一设备.
func (d *Disk) Duplicate() (*Disk, error) {
	if d.Dev == nil || d.Dev.file == nil {
		return nil, errors.New("duplicate disk: device is closed")
	}
	c := &Disk{
		Dev:         d.Dev,
		label:       d.label.clone(),
		fingerprint: d.fingerprint,
		logger:      d.logger,
	}
	c.parts = make([]*Partition, 0, len(d.parts))
	for _, p := range d.parts {
		c.parts = append(c.parts, p.clone(c))
	}
	return c, nil
}

func (d *Disk) throw(err error) error {
	return d.Dev.exceptions.Throw(err)
}

func (d *Disk) sortPartitions() {
	sort.SliceStable(d.parts, func(i, j int) bool {
		return d.parts[i].Geom.Start < d.parts[j].Geom.Start
	})
}

// renumber 按起始扇区重新为逻辑分区编号(5, 6, ...).
func (d *Disk) renumber() {
	d.sortPartitions()
	if !d.label.supportsExtended() {
		return
	}
	for i, l := range d.LogicalPartitions() {
		l.Num = table.MBRPartitionEntryCount + i + 1
	}
}

// ActivePartitions 返回所有已编号分区(含扩展分区), 按起始扇区排序.
func (d *Disk) ActivePartitions() []*Partition {
	return append([]*Partition(nil), d.parts...)
}

// topLevel 返回非逻辑分区.
func (d *Disk) topLevel() []*Partition {
	out := make([]*Partition, 0, len(d.parts))
	for _, p := range d.parts {
		if !p.Type.Has(PartitionLogical) {
			out = append(out, p)
		}
	}
	return out
}

// LogicalPartitions 返回所有逻辑分区, 按起始扇区排序.
func (d *Disk) LogicalPartitions() []*Partition {
	out := make([]*Partition, 0)
	for _, p := range d.parts {
		if p.Type.Has(PartitionLogical) {
			out = append(out, p)
		}
	}
	return out
}

// ExtendedPartition 返回扩展分区, 不存在时返回nil.
func (d *Disk) ExtendedPartition() *Partition {
	for _, p := range d.parts {
		if p.Type.Has(PartitionExtended) {
			return p
		}
	}
	return nil
}

// GetPartition 按编号查找分区, 不存在时返回nil.
func (d *Disk) GetPartition(num int) *Partition {
	for _, p := range d.parts {
		if p.Num == num {
			return p
		}
	}
	return nil
}

// LastPartitionNum 返回最大分区编号, 无分区时返回-1.
func (d *Disk) LastPartitionNum() int {
	last := -1
	for _, p := range d.parts {
		if p.Num > last {
			last = p.Num
		}
	}
	return last
}

// TypeForSector 返回起点位于扇区s的新分区应使用的类型: 位于扩展分区内为逻辑分区, 否则为主分区.
func (d *Disk) TypeForSector(s int64) PartitionType {
	if ext := d.ExtendedPartition(); ext != nil && ext.Geom.TestSectorInside(s) {
		return PartitionLogical
	}
	return PartitionNormal
}

// Partitions 返回完整布局: 已编号分区以及编号为-1的空闲区与元数据区, 按起始扇区排序.
func (d *Disk) Partitions() []*Partition {
	layout := make([]*Partition, 0, 2*len(d.parts)+2)
	region := func(typ PartitionType, g Geometry) *Partition {
		return &Partition{Num: -1, Type: typ, Geom: g, disk: d}
	}

	for _, g := range d.label.metadata(d) {
		layout = append(layout, region(PartitionMetadata, g))
	}
	top := d.topLevel()
	occupied := make([]Geometry, 0, len(top))
	for _, p := range top {
		occupied = append(occupied, p.Geom)
	}
	for _, g := range freeGaps(d.label.usable(d), occupied) {
		layout = append(layout, region(PartitionFreeSpace, g))
	}
	layout = append(layout, top...)

	if ext := d.ExtendedPartition(); ext != nil {
		logicals := d.LogicalPartitions()
		ebrs := []Geometry{{ext.Geom.Start, ext.Geom.Start}}
		for i, l := range logicals {
			if i > 0 {
				ebrs = append(ebrs, Geometry{l.Geom.Start - 1, l.Geom.Start - 1})
			}
		}
		inner := append([]Geometry(nil), ebrs...)
		for _, g := range ebrs {
			layout = append(layout, region(PartitionLogical|PartitionMetadata, g))
		}
		for _, l := range logicals {
			inner = append(inner, l.Geom)
		}
		for _, g := range freeGaps(ext.Geom, inner) {
			layout = append(layout, region(PartitionLogical|PartitionFreeSpace, g))
		}
		layout = append(layout, logicals...)
	}

	sort.SliceStable(layout, func(i, j int) bool {
		if layout[i].Geom.Start != layout[j].Geom.Start {
			return layout[i].Geom.Start < layout[j].Geom.Start
		}
		// 扩展分区排在其首个EBR之前.
		return !layout[i].Type.Has(PartitionLogical) && layout[j].Type.Has(PartitionLogical)
	})
	return layout
}

// FreeRegions 返回布局中的空闲区域.
func (d *Disk) FreeRegions() []*Partition {
	out := make([]*Partition, 0)
	for _, p := range d.Partitions() {
		if p.Type.Has(PartitionFreeSpace) {
			out = append(out, p)
		}
	}
	return out
}

// freeGaps 返回bound内未被occupied覆盖的区域.
func freeGaps(bound Geometry, occupied []Geometry) []Geometry {
	occ := append([]Geometry(nil), occupied...)
	sort.Slice(occ, func(i, j int) bool { return occ[i].Start < occ[j].Start })
	gaps := make([]Geometry, 0)
	cursor := bound.Start
	for _, o := range occ {
		if cursor > bound.End {
			break
		}
		if o.Start > cursor {
			gaps = append(gaps, Geometry{Start: cursor, End: minInt64(o.Start-1, bound.End)})
		}
		if o.End+1 > cursor {
			cursor = o.End + 1
		}
	}
	if cursor <= bound.End {
		gaps = append(gaps, Geometry{Start: cursor, End: bound.End})
	}
	return gaps
}

// regionFor 返回起点为s、类型为typ的分区可使用的最大空闲区域, exclude不计入占用.
func (d *Disk) regionFor(typ PartitionType, s int64, exclude *Partition) (Geometry, bool) {
	var bound Geometry
	occupied := make([]Geometry, 0, len(d.parts)+1)
	if typ.Has(PartitionLogical) {
		ext := d.ExtendedPartition()
		if ext == nil {
			return Geometry{}, false
		}
		bound = ext.Geom
		occupied = append(occupied, Geometry{ext.Geom.Start, ext.Geom.Start})
		for _, l := range d.LogicalPartitions() {
			if l == exclude {
				continue
			}
			// 逻辑分区之前为其EBR; 紧随其后的扇区只能作为下一个EBR, 不能作为分区起点.
			occupied = append(occupied, Geometry{l.Geom.Start - 1, l.Geom.End + 1})
		}
	} else {
		bound = d.label.usable(d)
		for _, p := range d.topLevel() {
			if p != exclude {
				occupied = append(occupied, p.Geom)
			}
		}
	}
	for _, g := range freeGaps(bound, occupied) {
		if g.TestSectorInside(s) {
			return g, true
		}
	}
	return Geometry{}, false
}

func (d *Disk) indexOf(p *Partition) int {
	for i, q := range d.parts {
		if q == p {
			return i
		}
	}
	return -1
}

// NewPartition 创建尚未加入分区表的分区, 其编号为-1.
func (d *Disk) NewPartition(typ PartitionType, fs fossick.Filesystem, start, end int64) (*Partition, error) {
	g := Geometry{Start: start, End: end}
	if !g.Valid() || !d.Dev.Geometry().TestInside(g) {
		return nil, d.throw(errors.Wrapf(ErrOutsideDevice, "partition %s on a device of %d sectors", g, d.Dev.Length))
	}
	if typ.Has(PartitionFreeSpace) || typ.Has(PartitionMetadata) {
		return nil, d.throw(errors.Errorf("cannot create a %s partition", typ))
	}
	if typ.Has(PartitionLogical) && typ.Has(PartitionExtended) {
		return nil, d.throw(errors.New("a partition cannot be both logical and extended"))
	}
	if typ != PartitionNormal && !d.label.supportsExtended() {
		return nil, d.throw(errors.Errorf("%s label does not support %s partitions", d.Type(), typ))
	}
	return &Partition{Num: -1, Type: typ, Geom: g, Fs: fs, disk: d}, nil
}

// AddPartition 在满足约束c的前提下将p加入分区表, p的几何区域可能被调整为最接近的可行解.
// c为nil时等同于 ConstraintAny.
func (d *Disk) AddPartition(p *Partition, c *Constraint) error {
	if p.disk != d {
		return d.throw(errors.New("partition belongs to another disk"))
	}
	if d.indexOf(p) >= 0 {
		return d.throw(errors.Errorf("partition %d is already in the table", p.Num))
	}
	if p.Type.Has(PartitionExtended) && d.ExtendedPartition() != nil {
		return d.throw(errors.New("disk already has an extended partition"))
	}
	if c == nil {
		c = ConstraintAny(d.Dev)
	}
	region, ok := d.regionFor(p.Type, p.Geom.Start, nil)
	if !ok {
		return d.throw(errors.Wrapf(ErrConstraint, "no free space for a %s partition at sector %d",
			p.Type, p.Geom.Start))
	}
	geom, ok := c.Solve(region, p.Geom)
	if !ok {
		return d.throw(errors.Wrapf(ErrConstraint, "partition %s within free region %s", p.Geom, region))
	}
	num := -1
	if !p.Type.Has(PartitionLogical) {
		var err error
		if num, err = d.label.allocNumber(d, p); err != nil {
			return d.throw(err)
		}
	}
	p.Geom = geom
	p.Num = num
	d.label.applyFilesystem(p)
	d.parts = append(d.parts, p)
	d.renumber()
	return nil
}

// RemovePartition 从分区表中移除p, 仍含逻辑分区的扩展分区不可移除.
func (d *Disk) RemovePartition(p *Partition) error {
	idx := d.indexOf(p)
	if idx < 0 {
		return d.throw(errors.Errorf("partition %s is not in the table", p))
	}
	if p.Type.Has(PartitionExtended) && len(d.LogicalPartitions()) > 0 {
		return d.throw(errors.Errorf("extended partition %d still holds logical partitions", p.Num))
	}
	d.parts = append(d.parts[:idx], d.parts[idx+1:]...)
	p.Num = -1
	d.renumber()
	return nil
}

// DeletePartition 移除p, 若p为扩展分区则连同其中的逻辑分区一并移除.
func (d *Disk) DeletePartition(p *Partition) error {
	if p.Type.Has(PartitionExtended) {
		for _, l := range d.LogicalPartitions() {
			if err := d.RemovePartition(l); err != nil {
				return err
			}
		}
	}
	return d.RemovePartition(p)
}

// SetPartitionGeometry 在满足约束c的前提下将p调整为最接近[start, end]的区域.
func (d *Disk) SetPartitionGeometry(p *Partition, c *Constraint, start, end int64) error {
	if d.indexOf(p) < 0 {
		return d.throw(errors.Errorf("partition %s is not in the table", p))
	}
	want := Geometry{Start: start, End: end}
	region, ok := d.regionFor(p.Type, start, p)
	if !ok {
		return d.throw(errors.Wrapf(ErrConstraint, "no free space for partition %d at sector %d", p.Num, start))
	}
	geom, ok := c.Solve(region, want)
	if !ok {
		return d.throw(errors.Wrapf(ErrConstraint, "partition %d to %s within free region %s", p.Num, want, region))
	}
	if p.Type.Has(PartitionExtended) {
		for _, l := range d.LogicalPartitions() {
			if l.Geom.Start <= geom.Start || !geom.TestInside(l.Geom) {
				return d.throw(errors.Wrapf(ErrConstraint,
					"extended partition %s would not contain logical partition %d", geom, l.Num))
			}
		}
	}
	p.Geom = geom
	d.renumber()
	return nil
}

// SetPartitionFilesystem 记录p上的文件系统并据此重设分区类型.
func (d *Disk) SetPartitionFilesystem(p *Partition, fs fossick.Filesystem) {
	p.Fs = fs
	p.SystemType = 0
	p.TypeGUID = [16]byte{}
	d.label.applyFilesystem(p)
}

// Check 校验分区表的一致性.
func (d *Disk) Check() error {
	whole := d.Dev.Geometry()
	seen := make(map[int]struct{}, len(d.parts))
	for _, p := range d.parts {
		if !p.Geom.Valid() || !whole.TestInside(p.Geom) {
			return d.throw(errors.Wrapf(ErrOutsideDevice, "partition %d %s", p.Num, p.Geom))
		}
		if p.Num <= 0 {
			return d.throw(errors.Errorf("partition %s has no number", p.Geom))
		}
		if _, dup := seen[p.Num]; dup {
			return d.throw(errors.Errorf("partition number %d is used twice", p.Num))
		}
		seen[p.Num] = struct{}{}
	}

	usable := d.label.usable(d)
	top := d.topLevel()
	for i, p := range top {
		if !usable.TestInside(p.Geom) {
			return d.throw(errors.Wrapf(ErrOutsideDevice, "partition %d %s is outside the usable area %s",
				p.Num, p.Geom, usable))
		}
		if i > 0 && top[i-1].Geom.End >= p.Geom.Start {
			return d.throw(errors.Wrapf(ErrOverlap, "partition %d %s and partition %d %s",
				top[i-1].Num, top[i-1].Geom, p.Num, p.Geom))
		}
	}

	ext := d.ExtendedPartition()
	logicals := d.LogicalPartitions()
	for i, l := range logicals {
		if ext == nil {
			return d.throw(errors.Errorf("logical partition %d without an extended partition", l.Num))
		}
		lower := ext.Geom.Start + 1
		if i > 0 {
			lower = logicals[i-1].Geom.End + 2
		}
		if l.Geom.Start < lower || l.Geom.End > ext.Geom.End {
			return d.throw(errors.Wrapf(ErrOverlap,
				"logical partition %d %s does not fit the extended partition %s with its EBR",
				l.Num, l.Geom, ext.Geom))
		}
	}
	return d.label.check(d)
}
