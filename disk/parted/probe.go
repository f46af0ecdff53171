package parted

import (
	"io"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick"
	"github.com/pkg/errors"
)

func (d *Disk) section(g Geometry) (*io.SectionReader, int64) {
	size := g.Length() * d.Dev.SectorSize
	return io.NewSectionReader(d.Dev, g.Start*d.Dev.SectorSize, size), size
}

// ProbeFileSystem 探测区域g起始处的文件系统.
func (d *Disk) ProbeFileSystem(g Geometry) (fossick.Filesystem, error) {
	if !g.Valid() || !d.Dev.Geometry().TestInside(g) {
		return fossick.Unknown, d.throw(errors.Wrapf(ErrOutsideDevice, "probe %s", g))
	}
	r, size := d.section(g)
	fs, err := fossick.Probe(r, size)
	if err != nil {
		return fossick.Unknown, d.throw(errors.Wrapf(ErrNoFilesystem, "%s: %v", g, err))
	}
	return fs, nil
}

// ProbeFileSystemSpecific 返回区域g起始处类型为fs的文件系统实际占用的区域, 按扇区向上取整.
func (d *Disk) ProbeFileSystemSpecific(fs fossick.Filesystem, g Geometry) (Geometry, error) {
	if !g.Valid() || !d.Dev.Geometry().TestInside(g) {
		return Geometry{}, d.throw(errors.Wrapf(ErrOutsideDevice, "probe %s", g))
	}
	r, size := d.section(g)
	n, err := fossick.ProbeSpecific(fs, r, size)
	if err != nil {
		return Geometry{}, d.throw(errors.Wrapf(err, "measure %s at %s", fs, g))
	}
	sectors := (n + d.Dev.SectorSize - 1) / d.Dev.SectorSize
	if sectors <= 0 {
		return Geometry{}, d.throw(errors.Errorf("%s at %s reports an empty size", fs, g))
	}
	return Geometry{Start: g.Start, End: g.Start + sectors - 1}, nil
}
