package fossick

import (
	"io"

	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/btrfs"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/ext"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/fat"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/ntfs"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/swap"
	"github.com/kisun-bit/undelpart/disk/filesystem/fossick/fs/xfs"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

var (
	ErrNoFilesystem        = errors.New("can not detect filesystem")
	ErrUnsupportedSpecific = errors.New("filesystem does not support exact range probing")
)

// probers 探测顺序即优先级: 带超级块校验的文件系统在前, 仅识别签名的在后.
var probers = []Prober{
	{
		Name:   EXT,
		Magics: []Magic{{Offset: ext.EXT234SuperBlockStartOff + 0x38, Value: EXTMagic}},
		Size: func(r io.ReaderAt) (int64, error) {
			sb, err := ext.ReadSuperblock(r)
			if err != nil {
				return 0, err
			}
			return sb.Size(), nil
		},
	},
	{
		Name:   XFS,
		Magics: []Magic{{Offset: 0, Value: XFSMagic}},
		Size: func(r io.ReaderAt) (int64, error) {
			sb, err := xfs.ReadSuperBlock(r)
			if err != nil {
				return 0, err
			}
			return sb.Size(), nil
		},
	},
	{
		Name:   BTRFS,
		Magics: []Magic{{Offset: btrfs.SuperBlockOffset + 0x40, Value: BTRFSMagic}},
		Size: func(r io.ReaderAt) (int64, error) {
			sb, err := btrfs.ReadSuperBlock(r)
			if err != nil {
				return 0, err
			}
			return sb.Size(), nil
		},
	},
	{
		Name:   NTFS,
		Magics: []Magic{{Offset: 3, Value: NTFSMagic}},
		Size: func(r io.ReaderAt) (int64, error) {
			bh, err := ntfs.ReadBootHeader(r)
			if err != nil {
				return 0, err
			}
			return bh.Size(), nil
		},
	},
	{
		Name:   FAT,
		Magics: []Magic{{Offset: 0x36, Value: FAT16Magic}, {Offset: 0x52, Value: FAT32Magic}},
		Size: func(r io.ReaderAt) (int64, error) {
			bpb, err := fat.ReadBPB(r)
			if err != nil {
				return 0, err
			}
			return bpb.Size(), nil
		},
	},
	{
		Name:   SWAP,
		Magics: swapMagics(),
		Size: func(r io.ReaderAt) (int64, error) {
			h, err := swap.ReadHeader(r)
			if err != nil {
				return 0, err
			}
			return h.Size(), nil
		},
	},
	{Name: JFS, Magics: []Magic{{Offset: 32 << 10, Value: JFSMagic}}},
	{Name: APFS, Magics: []Magic{{Offset: 32, Value: APFSMagic}}},
	{Name: OracleASM, Magics: []Magic{{Offset: 0x20, Value: OracleDiskMagic}}},
	{Name: ZFS, Magics: []Magic{{Offset: 128 << 10, Value: ZFSMagic}}},
}

func swapMagics() []Magic {
	ms := make([]Magic, 0, len(swap.PageSizes))
	for _, ps := range swap.PageSizes {
		ms = append(ms, Magic{Offset: ps - int64(len(SwapMagic)), Value: SwapMagic})
	}
	return ms
}

// Supported 返回全部可识别的文件系统.
func Supported() []Filesystem {
	return funk.Map(probers, func(p Prober) Filesystem { return p.Name }).([]Filesystem)
}

// SupportsSpecific 若fs支持精确范围探测, 则返回true.
func SupportsSpecific(fs_ Filesystem) bool {
	p, ok := lookup(fs_)
	return ok && p.Size != nil
}

func lookup(fs_ Filesystem) (Prober, bool) {
	found := funk.Find(probers, func(p Prober) bool { return p.Name == fs_ })
	if found == nil {
		return Prober{}, false
	}
	return found.(Prober), true
}

// Probe 识别r中长度为size字节的区域起点处的文件系统.
// 签名命中后, 对支持精确探测的文件系统还需通过超级块校验.
func Probe(r io.ReaderAt, size int64) (Filesystem, error) {
	headerLen := int64(headerProbeSize)
	if size < headerLen {
		headerLen = size
	}
	if headerLen <= 0 {
		return Unknown, ErrNoFilesystem
	}
	header := make([]byte, headerLen)
	n, err := r.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Unknown, errors.Wrap(err, "read filesystem header")
	}
	header = header[:n]

	for _, p := range probers {
		if !matchAny(header, p.Magics) {
			continue
		}
		if p.Size != nil {
			if _, err = p.Size(io.NewSectionReader(r, 0, size)); err != nil {
				logger.Debugf("Probe. %s signature matched but super block rejected: %v", p.Name, err)
				continue
			}
		}
		return p.Name, nil
	}
	return Unknown, ErrNoFilesystem
}

// ProbeSpecific 返回r中文件系统fs占用的精确字节数.
func ProbeSpecific(fs_ Filesystem, r io.ReaderAt, size int64) (int64, error) {
	p, ok := lookup(fs_)
	if !ok {
		return 0, errors.Errorf("unknown filesystem %q", fs_)
	}
	if p.Size == nil {
		return 0, errors.Wrap(ErrUnsupportedSpecific, string(fs_))
	}
	n, err := p.Size(io.NewSectionReader(r, 0, size))
	if err != nil {
		return 0, errors.Wrapf(err, "probe %s range", fs_)
	}
	return n, nil
}

func matchAny(header []byte, magics []Magic) bool {
	for _, m := range magics {
		end := m.Offset + int64(len(m.Value))
		if end > int64(len(header)) {
			continue
		}
		if string(header[m.Offset:end]) == m.Value {
			return true
		}
	}
	return false
}
