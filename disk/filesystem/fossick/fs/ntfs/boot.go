package ntfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	OEMID          = "NTFS    "
	BootSectorSize = 512
	EndMarker      = 0xAA55
)

// BootHeader
// @Description: NTFS分区的启动扇区的字节数据分块
type BootHeader struct {
	JMP                    [3]byte   `struc:"[3]byte"`        // 0x00   | JMP 指令
	OEM                    [8]byte   `struc:"[8]byte"`        // 0x03   | OEM 标识, 恒为"NTFS    "
	BytesPerSector         uint16    `struc:"uint16,little"`  // 0x0B   | 每扇区字节数
	SectorsPerCluster      uint8     `struc:"uint8"`          // 0x0D   | 每簇扇区数
	RetainSectors          uint16    `struc:"uint16,little"`  // 0x0E   | 保留扇区数
	Unused0x10             [5]byte   `struc:"[5]byte"`        // 0x10   | --
	MediaDesc              uint8     `struc:"uint8"`          // 0x15   | 介质描述符
	Unused0x16             [2]byte   `struc:"[2]byte"`        // 0x16   | --
	SectorsPerTrack        uint16    `struc:"uint16,little"`  // 0x18   | --
	NumberOfHeads          uint16    `struc:"uint16,little"`  // 0x1A   | 磁头数
	HiddenSectors          uint32    `struc:"uint32,little"`  // 0x1C   | 隐藏扇区数
	Unused0x20             [8]byte   `struc:"[8]byte"`        // 0x20   | --
	TotalSectors           int64     `struc:"int64,little"`   // 0x28   | 总扇区数(不含位于卷末的备份引导扇区)
	MFTClusterStartNo      int64     `struc:"int64,little"`   // 0x30   | $MFT簇号
	MFTMirrClusterStartNo  int64     `struc:"int64,little"`   // 0x38   | $MFTMirr簇号
	ClustersPerRecord      int8      `struc:"int8"`           // 0x40   | 每一项文件记录的簇数, 负数表示2的-value次幂字节
	Unused0x41             [3]byte   `struc:"[3]byte"`        // 0x41   | --
	ClustersPerIndexBuffer int8      `struc:"int8"`           // 0x44   | 每个索引缓冲占据的簇数目
	Unused0x45             [3]byte   `struc:"[3]byte"`        // 0x45   | --
	VolumeSerialNumber     [8]byte   `struc:"[8]byte"`        // 0x48   | 卷序列号
	Checksum               [4]byte   `struc:"[4]byte"`        // 0x50   | 校验和,未使用
	BootstrapCode          [426]byte `struc:"[426]byte"`      // 0x54   | 启动指令码
	EndMarker              uint16    `struc:"uint16,little"` // 0x01FE | 扇区结束标记
}

// ReadBootHeader 读取并校验r起始处的NTFS启动扇区.
func ReadBootHeader(r io.ReaderAt) (*BootHeader, error) {
	boot := make([]byte, BootSectorSize)
	if _, err := r.ReadAt(boot, 0); err != nil {
		return nil, errors.Wrap(err, "read NTFS boot sector")
	}
	bh := new(BootHeader)
	if err := struc.Unpack(bytes.NewReader(boot), bh); err != nil {
		return nil, errors.Wrap(err, "unpack NTFS boot sector")
	}
	if err := bh.Check(); err != nil {
		return nil, err
	}
	return bh, nil
}

// Pack 序列化为512字节启动扇区.
func (bh *BootHeader) Pack() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := struc.Pack(buf, bh); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (bh *BootHeader) TotalClusters() int64 {
	if bh.SectorsPerCluster == 0 {
		return 0
	}
	return bh.TotalSectors / int64(bh.SectorsPerCluster)
}

func (bh *BootHeader) ClusterSize() int {
	return int(bh.BytesPerSector) * int(bh.SectorsPerCluster)
}

// Size 文件系统占用的字节数, 包含位于卷末的备份引导扇区.
func (bh *BootHeader) Size() int64 {
	return (bh.TotalSectors + 1) * int64(bh.BytesPerSector)
}

func (bh *BootHeader) Check() error {
	if string(bh.OEM[:]) != OEMID {
		return errors.Errorf("invalid OEM id %q", string(bh.OEM[:]))
	}
	if bh.EndMarker != EndMarker {
		return errors.New("invalid End-of-sector Marker at 0x01FE")
	}
	switch bh.BytesPerSector {
	case 256, 512, 1024, 2048, 4096:
	default:
		return fmt.Errorf("invalid bytes per sector: %d", bh.BytesPerSector)
	}
	if cs := bh.ClusterSize(); cs == 0 || cs&(cs-1) != 0 || cs > 0x200000 {
		return fmt.Errorf("invalid cluster size: %d", cs)
	}
	if bh.TotalClusters() == 0 {
		return errors.New("cluster number is 0")
	}
	return nil
}
