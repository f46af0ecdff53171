package parted

import (
	"github.com/kisun-bit/undelpart/disk/table"
	"github.com/pkg/errors"
)

// gptLabel GPT分区表及其保护性MBR.
type gptLabel struct {
	gpt  *table.GPT
	pmbr *table.MBR
}

func (l *gptLabel) diskType() table.DiskType {
	return table.DTypeGPT
}

func (l *gptLabel) supportsExtended() bool {
	return false
}

func (l *gptLabel) fresh(d *Disk) error {
	g, err := table.NewGPT(d.Dev.Length, d.Dev.SectorSize)
	if err != nil {
		return err
	}
	l.gpt = g
	l.pmbr = table.NewProtectiveMBR(d.Dev.Length)
	return nil
}

func (l *gptLabel) read(d *Disk) error {
	g, err := table.ReadGPTWithBackup(d.Dev, d.Dev.SectorSize, d.Dev.Length)
	if err != nil {
		return err
	}
	if g.Header.BackupLBA != d.Dev.Length-1 {
		_ = d.throw(errors.Errorf("backup GPT header of %s is at LBA %d instead of the last sector %d, it moves on commit",
			d.Dev.Path, g.Header.BackupLBA, d.Dev.Length-1))
	}
	if l.pmbr, err = table.ReadMBR(d.Dev, 0, d.Dev.SectorSize, false); err != nil {
		l.pmbr = nil
	}
	l.gpt = g

	for _, e := range g.PartitionEntries {
		if e.IsEmpty() {
			continue
		}
		d.parts = append(d.parts, &Partition{
			Num:      e.Index,
			Type:     PartitionNormal,
			Geom:     Geometry{Start: e.FirstLBAIndex, End: e.LastLBAIndex},
			TypeGUID: e.PartTypeGUID,
			UniqGUID: e.UniqGUID,
			Name:     e.DecodedPartitionName(),
			Attrs:    e.AttrFlags,
			disk:     d,
		})
	}
	return nil
}

// entrySectors 分区表项数组占用的扇区数.
func (l *gptLabel) entrySectors(sectorSize int64) int64 {
	n := int64(l.gpt.Header.NumberOfPartEntries) * int64(l.gpt.Header.PartEntrySize)
	return (n + sectorSize - 1) / sectorSize
}

func (l *gptLabel) write(d *Disk) error {
	g := &table.GPT{SectorSize: d.Dev.SectorSize, Header: l.gpt.Header}
	h := &g.Header
	h.CurrentLBA = table.GPTHeaderLBA
	h.StartingLBAForPartEntries = table.GPTEntriesLBA
	if h.BackupLBA != d.Dev.Length-1 {
		h.BackupLBA = d.Dev.Length - 1
		h.LastUsableLBA = d.Dev.Length - 2 - l.entrySectors(d.Dev.SectorSize)
	}

	g.PartitionEntries = make([]table.GPTPartitionEntry, h.NumberOfPartEntries)
	for i := range g.PartitionEntries {
		g.PartitionEntries[i].Index = i + 1
	}
	for _, p := range d.parts {
		if p.Num < 1 || p.Num > len(g.PartitionEntries) {
			return errors.Errorf("GPT partition number %d out of range", p.Num)
		}
		e := &g.PartitionEntries[p.Num-1]
		e.PartTypeGUID = p.TypeGUID
		e.UniqGUID = p.UniqGUID
		e.FirstLBAIndex = p.Geom.Start
		e.LastLBAIndex = p.Geom.End
		e.AttrFlags = p.Attrs
		e.SetPartitionName(p.Name)
	}
	if err := g.WriteTo(d.Dev); err != nil {
		return err
	}

	pmbr := table.NewProtectiveMBR(d.Dev.Length)
	if l.pmbr != nil {
		pmbr.BootLoader = l.pmbr.BootLoader
	}
	if err := writeBootRecord(d, 0, pmbr); err != nil {
		return err
	}
	l.gpt = g
	l.pmbr = pmbr
	return nil
}

func (l *gptLabel) usable(_ *Disk) Geometry {
	return Geometry{Start: l.gpt.Header.FirstUsableLBA, End: l.gpt.Header.LastUsableLBA}
}

func (l *gptLabel) metadata(d *Disk) []Geometry {
	return []Geometry{
		{Start: 0, End: l.gpt.Header.FirstUsableLBA - 1},
		{Start: l.gpt.Header.LastUsableLBA + 1, End: d.Dev.Length - 1},
	}
}

func (l *gptLabel) tableSectors(d *Disk) []int64 {
	sectors := make([]int64, 0)
	for _, g := range l.metadata(d) {
		for s := g.Start; s <= g.End; s++ {
			sectors = append(sectors, s)
		}
	}
	return sectors
}

func (l *gptLabel) allocNumber(d *Disk, _ *Partition) (int, error) {
	used := make(map[int]struct{}, len(d.parts))
	for _, p := range d.parts {
		used[p.Num] = struct{}{}
	}
	for n := 1; n <= int(l.gpt.Header.NumberOfPartEntries); n++ {
		if _, ok := used[n]; !ok {
			return n, nil
		}
	}
	return -1, errors.Wrapf(ErrNoSlot, "GPT holds at most %d partitions", l.gpt.Header.NumberOfPartEntries)
}

func (l *gptLabel) applyFilesystem(p *Partition) {
	if p.TypeGUID == [16]byte{} {
		p.TypeGUID = typeGUIDFor(p.Fs)
	}
	if p.UniqGUID == [16]byte{} {
		p.UniqGUID = table.NewRandomGUID()
	}
}

func (l *gptLabel) check(d *Disk) error {
	for _, p := range d.parts {
		if p.Type != PartitionNormal {
			return errors.Errorf("GPT partition %d has type %s", p.Num, p.Type)
		}
		if p.Num > int(l.gpt.Header.NumberOfPartEntries) {
			return errors.Errorf("GPT partition number %d out of range", p.Num)
		}
	}
	return nil
}

func (l *gptLabel) clone() label {
	c := &gptLabel{}
	if l.gpt != nil {
		c.gpt = &table.GPT{SectorSize: l.gpt.SectorSize, Header: l.gpt.Header}
		c.gpt.PartitionEntries = append([]table.GPTPartitionEntry(nil), l.gpt.PartitionEntries...)
	}
	if l.pmbr != nil {
		pmbr := *l.pmbr
		c.pmbr = &pmbr
	}
	return c
}
