package undelete

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Unassigned 未分配编号的描述符编号.
const Unassigned = -1

// Descriptor 分区描述符 [number, start, end], 扇区均包含在内.
type Descriptor struct {
	Number int
	Start  int64
	End    int64
}

// NewDescriptor 构造描述符, 编号0被规范化为 Unassigned.
func NewDescriptor(number int, start, end int64) (Descriptor, error) {
	if number == 0 {
		number = Unassigned
	}
	d := Descriptor{Number: number, Start: start, End: end}
	if number < Unassigned {
		return d, errors.Wrapf(ErrMalformedDescriptor, "%s: negative partition number", d)
	}
	if start < 0 || end < start {
		return d, errors.Wrapf(ErrMalformedDescriptor, "%s: start must not exceed end", d)
	}
	return d, nil
}

// describe 将分区转换为描述符.
func describe(p *parted.Partition) Descriptor {
	return Descriptor{Number: p.Num, Start: p.Geom.Start, End: p.Geom.End}
}

func describeAll(parts []*parted.Partition) []Descriptor {
	out := make([]Descriptor, 0, len(parts))
	for _, p := range parts {
		out = append(out, describe(p))
	}
	return out
}

// Validate 检查描述符位于共length个扇区的设备内.
func (d Descriptor) Validate(length int64) error {
	if d.End >= length {
		return errors.Wrapf(ErrMalformedDescriptor, "%s lies beyond the device end %d", d, length-1)
	}
	return nil
}

func (d Descriptor) Geometry() parted.Geometry {
	return parted.Geometry{Start: d.Start, End: d.End}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("[%d, %d, %d]", d.Number, d.Start, d.End)
}

// ParseDescriptors 解析JSON形式的描述符列表 `[[number, start, end], ...]`.
// 各元素可为整数或整数字符串, 任一元素非法时整体失败.
func ParseDescriptors(data []byte) ([]Descriptor, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrMalformedDescriptor, "invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.Wrap(ErrMalformedDescriptor, "descriptor list must be an array")
	}
	var (
		out  = make([]Descriptor, 0)
		perr error
		idx  int
	)
	root.ForEach(func(_, value gjson.Result) bool {
		d, err := parseDescriptor(value)
		if err != nil {
			perr = errors.WithMessagef(err, "descriptor #%d", idx)
			return false
		}
		out = append(out, d)
		idx++
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return out, nil
}

func parseDescriptor(v gjson.Result) (Descriptor, error) {
	if !v.IsArray() {
		return Descriptor{}, errors.Wrapf(ErrMalformedDescriptor, "%s is not an array", v.Raw)
	}
	fields := v.Array()
	if len(fields) != 3 {
		return Descriptor{}, errors.Wrapf(ErrMalformedDescriptor, "%s needs 3 elements, got %d", v.Raw, len(fields))
	}
	var nums [3]int64
	for i, f := range fields {
		n, err := parseInteger(f)
		if err != nil {
			return Descriptor{}, err
		}
		nums[i] = n
	}
	return NewDescriptor(int(nums[0]), nums[1], nums[2])
}

func parseInteger(f gjson.Result) (int64, error) {
	var raw string
	switch f.Type {
	case gjson.Number:
		raw = f.Raw
	case gjson.String:
		raw = strings.TrimSpace(f.Str)
	default:
		return 0, errors.Wrapf(ErrMalformedDescriptor, "%s is not an integer", f.Raw)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedDescriptor, "%s is not an integer", f.Raw)
	}
	return n, nil
}

// FormatDescriptors 将描述符列表编码为JSON.
func FormatDescriptors(ds []Descriptor) (string, error) {
	json_ := "[]"
	var err error
	for _, d := range ds {
		json_, err = sjson.Set(json_, "-1", []int64{int64(d.Number), d.Start, d.End})
		if err != nil {
			return "", errors.Wrap(err, "encode descriptors")
		}
	}
	return json_, nil
}
