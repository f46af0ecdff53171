//go:build !linux

package ioctl

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

var errUnsupported = errors.Errorf("block device ioctl is not supported on %s", runtime.GOOS)

func QueryFileSize(fileName string) (uint64, error) {
	info, err := os.Stat(fileName)
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeDevice != 0 {
		return 0, errUnsupported
	}
	return uint64(info.Size()), nil
}

func QuerySectorSize(_ *os.File) (int64, error) {
	return DefaultSectorSize, nil
}

func RereadPartitionTable(_ *os.File) error {
	return errUnsupported
}

func IsBusy(_ error) bool {
	return false
}

func FlushBuffers(f *os.File) error {
	return f.Sync()
}

func IsBlockDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
}

func EnumBlockDevices() ([]string, error) {
	return nil, errUnsupported
}

func EnumBlockDevicesIn(_, _ string) ([]string, error) {
	return nil, errUnsupported
}
