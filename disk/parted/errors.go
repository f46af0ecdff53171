package parted

import "github.com/pkg/errors"

var (
	ErrUnrecognisedLabel = errors.New("unrecognised disk label")
	ErrConstraint        = errors.New("unable to satisfy all constraints on the partition")
	ErrNoFilesystem      = errors.New("no filesystem detected")
	ErrStaleTable        = errors.New("partition table changed on disk since it was read")
	ErrReadOnly          = errors.New("device is opened read-only")
	ErrOverlap           = errors.New("partitions overlap")
	ErrNoSlot            = errors.New("no free partition slot")
	ErrOutsideDevice     = errors.New("geometry lies outside the device")
)
