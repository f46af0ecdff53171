package table

import (
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type DiskType string

const (
	DTypeGPT DiskType = "GPT"
	DTypeMBR DiskType = "MBR"
	DTypeRAW DiskType = "RAW"
)

// mixedEndianOrder GUID前三段为小端序, 后两段为大端序.
var mixedEndianOrder = [16]int{3, 2, 1, 0, 5, 4, 7, 6, 8, 9, 10, 11, 12, 13, 14, 15}

// GUIDToString 将磁盘上的原始GUID转换为大写字符串.
// 注意: byteGuid 的长度只能等于16, 否则将返回空串.
func GUIDToString(byteGuid []byte) string {
	if len(byteGuid) != 16 {
		return ""
	}
	var canonical uuid.UUID
	for i, j := range mixedEndianOrder {
		canonical[i] = byteGuid[j]
	}
	return strings.ToUpper(canonical.String())
}

// GUIDFromString 将GUID字符串转换为磁盘上的mixed endian字节序.
func GUIDFromString(s string) ([16]byte, error) {
	var raw [16]byte
	canonical, err := uuid.Parse(s)
	if err != nil {
		return raw, errors.Wrapf(err, "parse GUID %q", s)
	}
	for i, j := range mixedEndianOrder {
		raw[j] = canonical[i]
	}
	return raw, nil
}

// MustGUIDFromString 同 GUIDFromString, 用于常量GUID, 解析失败时panic.
func MustGUIDFromString(s string) [16]byte {
	raw, err := GUIDFromString(s)
	if err != nil {
		panic(err)
	}
	return raw
}

// NewRandomGUID 生成一个随机(v4)GUID的磁盘字节序形式.
func NewRandomGUID() [16]byte {
	raw, _ := GUIDFromString(uuid.New().String())
	return raw
}

// GetDiskType 依据LBA0判断磁盘的分区表类型.
// 无有效引导签名时为RAW, 存在保护性分区时为GPT, 否则为MBR.
func GetDiskType(r io.ReaderAt, sectorSize int64) (DiskType, error) {
	mbr, err := ReadMBR(r, 0, sectorSize, false)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return DTypeRAW, err
		}
		return DTypeRAW, nil
	}
	if mbr.IsProtective() {
		// 主GPT损坏时仍判定为GPT, 由 ReadGPTWithBackup 回退至备份GPT.
		return DTypeGPT, nil
	}
	return DTypeMBR, nil
}
