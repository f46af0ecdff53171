package parted

import (
	"encoding/binary"

	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/pkg/errors"
)

// msdosLabel MBR分区表, 逻辑分区经由扩展分区内的EBR链描述.
type msdosLabel struct {
	mbr        *table.MBR
	ebrSectors []int64
}

func (l *msdosLabel) diskType() table.DiskType {
	return table.DTypeMBR
}

func (l *msdosLabel) supportsExtended() bool {
	return true
}

func (l *msdosLabel) fresh(_ *Disk) error {
	l.mbr = table.NewEmptyMBR()
	guid := table.NewRandomGUID()
	l.mbr.SetDiskSignature(binary.LittleEndian.Uint32(guid[:4]))
	l.ebrSectors = nil
	return nil
}

func (l *msdosLabel) read(d *Disk) error {
	mbr, err := table.ReadMBR(d.Dev, 0, d.Dev.SectorSize, false)
	if err != nil {
		return err
	}
	l.mbr = mbr
	l.ebrSectors = nil

	for _, e := range mbr.MainPartitionEntries() {
		typ := PartitionNormal
		if e.IsExtend() {
			typ = PartitionExtended
		}
		d.parts = append(d.parts, &Partition{
			Num:        e.Index,
			Type:       typ,
			Geom:       Geometry{Start: e.StartingLBA, End: e.EndSector()},
			SystemType: e.PartitionType,
			Bootable:   e.IsBootable(),
			disk:       d,
		})
	}

	ext, ok := mbr.ExtendedEntry()
	if !ok {
		return nil
	}
	lps, err := table.ReadEBRChain(d.Dev, ext, d.Dev.SectorSize)
	if err != nil {
		return err
	}
	if len(lps) == 0 {
		l.ebrSectors = append(l.ebrSectors, ext.StartingLBA)
	}
	for _, lp := range lps {
		d.parts = append(d.parts, &Partition{
			Num:        lp.Index,
			Type:       PartitionLogical,
			Geom:       Geometry{Start: lp.StartingLBA, End: lp.EndSector()},
			SystemType: lp.PartitionType,
			Bootable:   lp.IsBootable(),
			disk:       d,
		})
		l.ebrSectors = append(l.ebrSectors, lp.EBRSector)
	}
	return nil
}

func mbrEntry(p *Partition) table.MBRPartition {
	e := table.MBRPartition{
		Index:         p.Num,
		PartitionType: p.SystemType,
		StartingLBA:   p.Geom.Start,
		TotalSectors:  p.Geom.Length(),
	}
	if p.Bootable {
		e.BootIndicator = table.MBRPartitionBootable
	}
	e.SetCHS(p.Geom.Start, p.Geom.End)
	return e
}

// writeBootRecord 将br写入sector扇区的前512字节, 扇区其余部分保持不变.
func writeBootRecord(d *Disk, sector int64, br *table.MBR) error {
	bin, err := br.Pack()
	if err != nil {
		return err
	}
	buf, err := d.Dev.ReadSectors(sector, 1)
	if err != nil {
		return err
	}
	copy(buf, bin)
	return d.Dev.WriteSectors(sector, buf)
}

func (l *msdosLabel) write(d *Disk) error {
	d.renumber()

	mbr := *l.mbr
	mbr.IsEBR = false
	mbr.Sector = 0
	mbr.FullMainPartitionEntries = [table.MBRPartitionEntryCount]table.MBRPartition{}
	for _, p := range d.topLevel() {
		if p.Num < 1 || p.Num > table.MBRPartitionEntryCount {
			return errors.Errorf("primary partition number %d out of range", p.Num)
		}
		mbr.FullMainPartitionEntries[p.Num-1] = mbrEntry(p)
	}
	mbr.BootSignature = [2]byte{table.MBRSignature510, table.MBRSignature511}

	ebrSectors := make([]int64, 0)
	if ext := d.ExtendedPartition(); ext != nil {
		logicals := d.LogicalPartitions()
		if len(logicals) == 0 {
			empty := table.NewEmptyMBR()
			empty.IsEBR = true
			if err := writeBootRecord(d, ext.Geom.Start, empty); err != nil {
				return err
			}
			ebrSectors = append(ebrSectors, ext.Geom.Start)
		}
		for i, lp := range logicals {
			ebrSector := ext.Geom.Start
			if i > 0 {
				ebrSector = lp.Geom.Start - 1
			}
			var nextEBR, nextEnd int64
			if i+1 < len(logicals) {
				nextEBR = logicals[i+1].Geom.Start - 1
				nextEnd = logicals[i+1].Geom.End
			}
			entry := table.LogicalPartition{MBRPartition: mbrEntry(lp), EBRSector: ebrSector}
			ebr := table.NewEBR(entry, ext.Geom.Start, nextEBR, nextEnd)
			if err := writeBootRecord(d, ebrSector, ebr); err != nil {
				return err
			}
			ebrSectors = append(ebrSectors, ebrSector)
		}
	}
	if err := writeBootRecord(d, 0, &mbr); err != nil {
		return err
	}
	l.mbr = &mbr
	l.ebrSectors = ebrSectors
	return nil
}

func (l *msdosLabel) usable(d *Disk) Geometry {
	return Geometry{Start: 1, End: d.Dev.Length - 1}
}

func (l *msdosLabel) metadata(_ *Disk) []Geometry {
	return []Geometry{{Start: 0, End: 0}}
}

func (l *msdosLabel) tableSectors(_ *Disk) []int64 {
	return append([]int64{0}, l.ebrSectors...)
}

func (l *msdosLabel) allocNumber(d *Disk, _ *Partition) (int, error) {
	used := make(map[int]struct{})
	for _, p := range d.topLevel() {
		used[p.Num] = struct{}{}
	}
	for n := 1; n <= table.MBRPartitionEntryCount; n++ {
		if _, ok := used[n]; !ok {
			return n, nil
		}
	}
	return -1, errors.Wrapf(ErrNoSlot, "MBR holds at most %d primary partitions", table.MBRPartitionEntryCount)
}

func (l *msdosLabel) applyFilesystem(p *Partition) {
	if p.SystemType != table.Empty {
		return
	}
	if p.Type.Has(PartitionExtended) {
		p.SystemType = table.ExtendLBA
		return
	}
	p.SystemType = systemTypeFor(p.Fs)
}

func (l *msdosLabel) check(d *Disk) error {
	top := d.topLevel()
	if len(top) > table.MBRPartitionEntryCount {
		return errors.Errorf("%d primary partitions exceed the MBR limit of %d", len(top), table.MBRPartitionEntryCount)
	}
	for _, p := range top {
		if p.Num > table.MBRPartitionEntryCount {
			return errors.Errorf("primary partition number %d out of range", p.Num)
		}
	}
	logicals := d.LogicalPartitions()
	if len(logicals) > table.MBRMaxLogicalPartitions {
		return errors.Errorf("%d logical partitions exceed the limit of %d", len(logicals), table.MBRMaxLogicalPartitions)
	}
	for _, p := range d.parts {
		if p.Geom.Start > table.MBRMaxLBA || p.Geom.Length() > table.MBRMaxLBA {
			return errors.Errorf("partition %d %s exceeds the 32-bit LBA range of MBR", p.Num, p.Geom)
		}
		if p.Type.Has(PartitionLogical) && p.Num <= table.MBRPartitionEntryCount {
			return errors.Errorf("logical partition numbered %d", p.Num)
		}
	}
	return nil
}

func (l *msdosLabel) clone() label {
	c := &msdosLabel{ebrSectors: append([]int64(nil), l.ebrSectors...)}
	if l.mbr != nil {
		mbr := *l.mbr
		c.mbr = &mbr
	}
	return c
}
