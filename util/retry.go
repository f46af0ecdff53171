package util

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrRetryTimeout = errors.New("retry timeout")
)

// Retry 最多执行cb共number次, 每次失败后等待sleep, 返回最后一次的错误.
func Retry(ctx context.Context, cb func() error, number int, sleep time.Duration) error {
	return RetryIf(ctx, cb, func(error) bool { return true }, number, sleep)
}

// RetryIf 同 Retry, 但仅当retryable(err)为true时才重试, 否则立即返回该错误.
func RetryIf(ctx context.Context, cb func() error, retryable func(error) bool,
	number int, sleep time.Duration) error {
	var err error
	for i := 0; i < number; i++ {
		if err = cb(); err == nil {
			return nil
		}
		if !retryable(err) || i == number-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ErrRetryTimeout, err.Error())
		case <-time.After(sleep):
		}
	}
	return err
}
