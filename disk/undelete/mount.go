package undelete

import (
	"path/filepath"

	"github.com/kisun-bit/undelpart/sys/ioctl"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/thoas/go-funk"
)

// mountedDevices 返回当前已挂载的设备路径(已解析符号链接).
func mountedDevices() ([]string, error) {
	stats, err := disk.Partitions(true)
	if err != nil {
		return nil, errors.Wrap(err, "list mounted filesystems")
	}
	devices := make([]string, 0, len(stats))
	for _, st := range stats {
		if !filepath.IsAbs(st.Device) {
			continue
		}
		devices = append(devices, canonicalPath(st.Device))
	}
	return funk.UniqString(devices), nil
}

func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// checkUnmounted 若diskPath上编号在nums中的任一分区已挂载, 则返回 ErrPartitionMounted.
func (s *Session) checkUnmounted(diskPath string, nums []int) error {
	if !s.mountCheck || len(nums) == 0 {
		return nil
	}
	mounted, err := s.mounted()
	if err != nil {
		return errors.Wrap(err, "check mounted partitions")
	}
	for _, n := range nums {
		dev := canonicalPath(ioctl.GeneratePartDeviceName(diskPath, n))
		if funk.ContainsString(mounted, dev) {
			return errors.Wrapf(ErrPartitionMounted, "%s (partition %d of %s)", dev, n, diskPath)
		}
	}
	return nil
}
