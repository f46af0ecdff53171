package parted

import "fmt"

// Geometry 连续扇区区域[Start, End], 两端均包含.
type Geometry struct {
	Start int64
	End   int64
}

func (g Geometry) Length() int64 {
	return g.End - g.Start + 1
}

// Valid 若 Start <= End 且均非负, 则返回true.
func (g Geometry) Valid() bool {
	return g.Start >= 0 && g.End >= g.Start
}

// TestInside 若o完全位于g内, 则返回true.
func (g Geometry) TestInside(o Geometry) bool {
	return o.Start >= g.Start && o.End <= g.End
}

// TestSectorInside 若扇区s位于g内, 则返回true.
func (g Geometry) TestSectorInside(s int64) bool {
	return s >= g.Start && s <= g.End
}

// TestOverlap 若g与o存在公共扇区, 则返回true.
func (g Geometry) TestOverlap(o Geometry) bool {
	return g.Start <= o.End && o.Start <= g.End
}

// Intersect 返回g与o的交集, 无交集时ok为false.
func (g Geometry) Intersect(o Geometry) (res Geometry, ok bool) {
	res = Geometry{Start: maxInt64(g.Start, o.Start), End: minInt64(g.End, o.End)}
	return res, res.End >= res.Start
}

func (g Geometry) String() string {
	return fmt.Sprintf("[%d, %d]", g.Start, g.End)
}

// Constraint 约束分区的起点范围、终点范围与长度范围.
type Constraint struct {
	StartRange Geometry
	EndRange   Geometry
	MinSize    int64
	MaxSize    int64
}

func NewConstraint(startRange, endRange Geometry, minSize, maxSize int64) *Constraint {
	return &Constraint{StartRange: startRange, EndRange: endRange, MinSize: minSize, MaxSize: maxSize}
}

// ConstraintExact 仅允许g本身的约束.
func ConstraintExact(g Geometry) *Constraint {
	return NewConstraint(Geometry{g.Start, g.Start}, Geometry{g.End, g.End}, g.Length(), g.Length())
}

// ConstraintAny 允许设备上任意区域的约束.
func ConstraintAny(dev *Device) *Constraint {
	whole := dev.Geometry()
	return NewConstraint(whole, whole, 1, dev.Length)
}

// IsSolution 若g满足约束, 则返回true.
func (c *Constraint) IsSolution(g Geometry) bool {
	return g.Valid() &&
		c.StartRange.TestSectorInside(g.Start) &&
		c.EndRange.TestSectorInside(g.End) &&
		g.Length() >= c.MinSize && g.Length() <= c.MaxSize
}

// Solve 在region内求解最接近want的满足约束的区域.
func (c *Constraint) Solve(region, want Geometry) (Geometry, bool) {
	starts, ok := c.StartRange.Intersect(region)
	if !ok {
		return Geometry{}, false
	}
	start := clampInt64(want.Start, starts.Start, starts.End)

	minSize, maxSize := c.MinSize, c.MaxSize
	if minSize < 1 {
		minSize = 1
	}
	sizes := Geometry{Start: start + minSize - 1, End: start + maxSize - 1}
	if maxSize <= 0 {
		sizes.End = region.End
	}
	ends, ok := c.EndRange.Intersect(region)
	if !ok {
		return Geometry{}, false
	}
	if ends, ok = ends.Intersect(sizes); !ok {
		return Geometry{}, false
	}
	res := Geometry{Start: start, End: clampInt64(want.End, ends.Start, ends.End)}
	return res, c.IsSolution(res)
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
