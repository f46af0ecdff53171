package xfs

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	XFSMagic       = "XFSB"
	SuperBlockSize = 512
)

// SuperBlock XFS主超级块(AG0)的前部字段, 位于文件系统起点, 所有字段均为大端序.
type SuperBlock struct {
	Magicnum   [4]byte  `struc:"[4]byte"`
	Blocksize  uint32   `struc:"uint32,big"`
	Dblocks    uint64   `struc:"uint64,big"`
	Rblocks    uint64   `struc:"uint64,big"`
	Rextents   uint64   `struc:"uint64,big"`
	UUID       [16]byte `struc:"[16]byte"`
	Logstart   uint64   `struc:"uint64,big"`
	Rootino    uint64   `struc:"uint64,big"`
	Rbmino     uint64   `struc:"uint64,big"`
	Rsumino    uint64   `struc:"uint64,big"`
	Rextsize   uint32   `struc:"uint32,big"`
	Agblocks   uint32   `struc:"uint32,big"`
	Agcount    uint32   `struc:"uint32,big"`
	Rbmblocks  uint32   `struc:"uint32,big"`
	Logblocks  uint32   `struc:"uint32,big"`
	Versionnum uint16   `struc:"uint16,big"`
	Sectsize   uint16   `struc:"uint16,big"`
}

// ReadSuperBlock 读取并校验r起点处的XFS超级块.
func ReadSuperBlock(r io.ReaderAt) (*SuperBlock, error) {
	raw := make([]byte, SuperBlockSize)
	if _, err := r.ReadAt(raw, 0); err != nil {
		return nil, errors.Wrap(err, "read xfs super block")
	}
	sb := new(SuperBlock)
	if err := struc.Unpack(bytes.NewReader(raw), sb); err != nil {
		return nil, errors.Wrap(err, "unpack xfs super block")
	}
	if string(sb.Magicnum[:]) != XFSMagic {
		return nil, errors.Errorf("invalid xfs magic %q", string(sb.Magicnum[:]))
	}
	if sb.Blocksize < 512 || sb.Blocksize > 65536 || sb.Blocksize&(sb.Blocksize-1) != 0 {
		return nil, errors.Errorf("invalid xfs block size %d", sb.Blocksize)
	}
	if sb.Dblocks == 0 || sb.Agcount == 0 {
		return nil, errors.New("xfs super block reports no data blocks")
	}
	return sb, nil
}

func (sb *SuperBlock) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, sb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size 数据区占用的字节数(不含实时设备与外部日志).
func (sb *SuperBlock) Size() int64 {
	return int64(sb.Dblocks) * int64(sb.Blocksize)
}
