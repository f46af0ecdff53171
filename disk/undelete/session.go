// Package undelete 找回被误删的分区: 在分区表的空闲区域中搜索文件系统签名,
// 并将找到的文件系统重新登记到分区表中.
package undelete

import (
	"runtime"
	"sync"

	"github.com/kisun-bit/undelpart/disk/parted"
	"github.com/kisun-bit/undelpart/sys/ioctl"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultSearchRatio 候选搜索仅扫描区域的前10%.
const DefaultSearchRatio = 0.1

// Session 承载一组操作共用的日志器与设备枚举方式.
// 每个打开的设备拥有独立的诊断处理器, 同一设备路径上的修改操作需由调用者串行化.
type Session struct {
	logger      *zap.SugaredLogger
	searchRatio float64
	mountCheck  bool
	workers     int
	enumerate   func() ([]string, error)
	mounted     func() ([]string, error)
	sectorSizes sync.Map
}

type Option func(s *Session)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSearchRatio 设置候选搜索窗口占区域长度的比例, 取值范围(0, 1].
func WithSearchRatio(ratio float64) Option {
	return func(s *Session) {
		s.searchRatio = ratio
	}
}

// WithMountCheck 设置删除分区前是否检查其挂载状态(默认检查).
func WithMountCheck(check bool) Option {
	return func(s *Session) {
		s.mountCheck = check
	}
}

// WithDeviceEnumerator 设置 GetDiskList 使用的设备枚举函数.
func WithDeviceEnumerator(enumerate func() ([]string, error)) Option {
	return func(s *Session) {
		s.enumerate = enumerate
	}
}

// WithProbeWorkers 设置 GetDiskList 并发探测设备的协程数.
func WithProbeWorkers(n int) Option {
	return func(s *Session) {
		s.workers = n
	}
}

func NewSession(options ...Option) *Session {
	s := &Session{
		searchRatio: DefaultSearchRatio,
		mountCheck:  true,
		workers:     runtime.NumCPU(),
		enumerate:   ioctl.EnumBlockDevices,
		mounted:     mountedDevices,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.searchRatio <= 0 || s.searchRatio > 1 {
		s.logger.Warnf("NewSession. Search ratio %v out of range, use %v", s.searchRatio, DefaultSearchRatio)
		s.searchRatio = DefaultSearchRatio
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// open 打开设备并读取其分区表, 调用者负责关闭返回的设备.
func (s *Session) open(path string, readOnly bool) (*parted.Device, *parted.Disk, error) {
	options := []parted.DeviceOption{
		parted.WithExceptions(parted.NewExceptions(s.logger)),
		parted.WithDeviceLogger(s.logger),
	}
	if readOnly {
		options = append(options, parted.WithReadOnly())
	}
	dev, err := parted.OpenDevice(path, options...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open device %s", path)
	}
	s.sectorSizes.Store(path, dev.SectorSize)
	disk, err := parted.NewDisk(dev)
	if err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	return dev, disk, nil
}

// SectorSize 返回本会话最近一次打开path时得到的扇区大小, 未打开过时按512字节计.
func (s *Session) SectorSize(path string) int64 {
	if v, ok := s.sectorSizes.Load(path); ok {
		return v.(int64)
	}
	return 512
}
