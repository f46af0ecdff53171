package undelete

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMalformedDescriptor = errors.New("malformed partition descriptor")
	ErrNoDevices           = errors.New("unable to get a disk list. Are you root?")
	ErrAddPartition        = errors.New("failed to add partition")
	ErrInvalidTable        = errors.New("partition table is invalid")
	ErrCommit              = errors.New("failed to commit partition table")
	ErrPartitionMounted    = errors.New("partition is mounted")
)

// withCause 返回同时匹配kind与cause的错误.
func withCause(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}
