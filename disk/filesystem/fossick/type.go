package fossick

import "io"

type Filesystem string

func (fs_ Filesystem) String() string {
	return string(fs_)
}

// Magic 位于文件系统起点偏移Offset处的签名.
type Magic struct {
	Offset int64
	Value  string
}

// Prober 某一类文件系统的探测器.
type Prober struct {
	Name   Filesystem
	Magics []Magic // 任一签名命中即视为候选.
	// Size 返回文件系统的精确字节大小, 同时完成超级块校验.
	// 为nil时仅支持识别, 不支持精确范围探测.
	Size func(r io.ReaderAt) (int64, error)
}
