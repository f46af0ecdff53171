package ioctl

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// QueryFileSize 获取文件或块设备的字节大小.
func QueryFileSize(fileName string) (size uint64, err error) {
	var errno syscall.Errno
	info, err := os.Stat(fileName)
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeDevice == 0 {
		return uint64(info.Size()), nil
	}
	f, err := os.Open(fileName)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if runtime.GOARCH == "386" {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, f.Fd(), LinuxIOCTLGetBlockSize, uintptr(unsafe.Pointer(&size)))
		size <<= 9
	} else {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, f.Fd(), LinuxIOCTLGetBlockSize64, uintptr(unsafe.Pointer(&size)))
	}
	if errno != 0 {
		return 0, errors.Wrapf(errno, "BLKGETSIZE64 %s", fileName)
	}
	return size, nil
}

// QuerySectorSize 获取块设备的逻辑扇区大小, 普通文件恒为 DefaultSectorSize.
func QuerySectorSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeDevice == 0 {
		return DefaultSectorSize, nil
	}
	ssz, err := unix.IoctlGetInt(int(f.Fd()), LinuxIOCTLGetSectorSize)
	if err != nil {
		return 0, errors.Wrapf(err, "BLKSSZGET %s", f.Name())
	}
	if ssz <= 0 {
		return DefaultSectorSize, nil
	}
	return int64(ssz), nil
}

// RereadPartitionTable 通知内核重新读取设备f的分区表.
// 设备存在已挂载分区时内核返回EBUSY, 可使用 IsBusy 判断.
func RereadPartitionTable(f *os.File) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), LinuxIOCTLRereadPartTable, 0)
	if errno != 0 {
		return errors.Wrapf(errno, "BLKRRPART %s", f.Name())
	}
	return nil
}

// IsBusy 若err源于EBUSY, 则返回true.
func IsBusy(err error) bool {
	return errors.Is(err, unix.EBUSY)
}

// FlushBuffers 刷写设备f的缓存.
func FlushBuffers(f *os.File) error {
	if err := f.Sync(); err != nil {
		return err
	}
	if IsBlockDevice(f.Name()) {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), LinuxIOCTLFlushBufferCache, 0)
		if errno != 0 {
			return errors.Wrapf(errno, "BLKFLSBUF %s", f.Name())
		}
	}
	return nil
}

// IsBlockDevice 若path为块设备, 则返回true.
func IsBlockDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
}

// EnumBlockDevices 枚举系统中所有整盘块设备(不含分区), 返回按路径排序的设备路径.
func EnumBlockDevices() ([]string, error) {
	return EnumBlockDevicesIn(SysClassBlock, DevDir)
}

// EnumBlockDevicesIn 以sysRoot为 /sys/class/block, devRoot为 /dev 枚举整盘设备.
// 分区在sysfs中不存在device链接, 借此区分整盘与分区.
func EnumBlockDevicesIn(sysRoot, devRoot string) ([]string, error) {
	entries, err := os.ReadDir(sysRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %q", sysRoot)
	}
	devices := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if ignoredBlockDevice(name) {
			continue
		}
		if !sysfsExists(filepath.Join(sysRoot, name, "device")) {
			continue
		}
		devices = append(devices, filepath.Join(devRoot, name))
	}
	sort.Strings(devices)
	return devices, nil
}

func ignoredBlockDevice(name string) bool {
	for _, prefix := range ignoredBlockPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func sysfsExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
