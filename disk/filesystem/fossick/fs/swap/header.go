package swap

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	MagicV1 = "SWAP-SPACE"
	MagicV2 = "SWAPSPACE2"

	headerOffset = 1024
)

// PageSizes 依次尝试的页大小, 交换分区签名位于首页末尾10字节.
var PageSizes = []int64{4096, 8192, 16384, 65536}

// Header Linux交换分区头, 位于偏移1024处(bootbits之后).
type Header struct {
	Version    uint32   `struc:"uint32,little"`
	LastPage   uint32   `struc:"uint32,little"`
	NrBadPages uint32   `struc:"uint32,little"`
	UUID       [16]byte `struc:"[16]byte"`
	Label      [16]byte `struc:"[16]byte"`

	PageSize int64 `struc:"skip"`
}

// ReadHeader 读取r起点处的交换分区头.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	for _, ps := range PageSizes {
		sig := make([]byte, len(MagicV2))
		if _, err := r.ReadAt(sig, ps-int64(len(sig))); err != nil {
			break
		}
		if string(sig) != MagicV2 && string(sig) != MagicV1 {
			continue
		}
		raw := make([]byte, 44)
		if _, err := r.ReadAt(raw, headerOffset); err != nil {
			return nil, errors.Wrap(err, "read swap header")
		}
		h := &Header{PageSize: ps}
		if err := struc.Unpack(bytes.NewReader(raw), h); err != nil {
			return nil, errors.Wrap(err, "unpack swap header")
		}
		if string(sig) == MagicV1 || h.Version != 1 {
			return nil, errors.Errorf("unsupported swap version %d", h.Version)
		}
		if h.LastPage == 0 {
			return nil, errors.New("swap header reports no pages")
		}
		return h, nil
	}
	return nil, errors.New("no swap signature")
}

func (h *Header) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size 交换分区占用的字节数.
func (h *Header) Size() int64 {
	return (int64(h.LastPage) + 1) * h.PageSize
}
