package undelete

import (
	"github.com/kisun-bit/undelpart/disk/parted"
)

// window 长度为n的区域中参与扫描的起点数.
func (s *Session) window(n int64) int64 {
	return int64(float64(n) * s.searchRatio)
}

// Rescuable 在[start, end]中搜索未登记的文件系统, 找到时将其作为分区加入d(尚未落盘)并返回, 否则返回nil.
// 仅以区域前 searchRatio 部分内的扇区作为文件系统起点, 起点更靠后的文件系统不会被找到.
// 搜索期间分区库的诊断被捕获, 返回前恢复.
func (s *Session) Rescuable(d *parted.Disk, start, end int64) *parted.Partition {
	restore := d.Dev.Exceptions().Fetch()
	defer restore()

	limit := start + s.window(end-start)
	for sector := start; sector < limit; sector++ {
		if p := s.rescueAt(d, sector, end); p != nil {
			s.logger.Debugf("Rescuable(%s). Found %s at %s", d.Dev.Path, p.Fs, p.Geom)
			return p
		}
	}
	s.logger.Debugf("Rescuable(%s). Nothing in [%d, %d], scanned up to sector %d", d.Dev.Path, start, end, limit)
	return nil
}

// rescueAt 以sector为文件系统起点尝试找回分区.
func (s *Session) rescueAt(d *parted.Disk, sector, end int64) *parted.Partition {
	p, err := d.NewPartition(d.TypeForSector(sector), "", sector, end)
	if err != nil {
		return nil
	}
	anchor := parted.NewConstraint(parted.Geometry{Start: sector, End: sector}, d.Dev.Geometry(), 1, d.Dev.Length)
	if err = d.AddPartition(p, anchor); err != nil {
		return nil
	}
	discard := func() *parted.Partition {
		_ = d.RemovePartition(p)
		return nil
	}

	fs, err := d.ProbeFileSystem(p.Geom)
	if err != nil {
		return discard()
	}
	exact, err := d.ProbeFileSystemSpecific(fs, p.Geom)
	if err != nil {
		return discard()
	}
	if !p.Geom.TestInside(exact) {
		return discard()
	}
	if err = d.SetPartitionGeometry(p, parted.ConstraintExact(exact), exact.Start, exact.End); err != nil {
		return discard()
	}
	d.SetPartitionFilesystem(p, fs)
	return p
}
