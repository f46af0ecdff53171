package parted

import (
	"os"

	"github.com/kisun-bit/undelpart/sys/ioctl"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Device 已打开的块设备或磁盘镜像文件.
type Device struct {
	Path          string
	SectorSize    int64 // 逻辑扇区字节数.
	Length        int64 // 扇区总数.
	ReadOnly      bool
	IsBlockDevice bool

	file       *os.File
	exceptions *Exceptions
	logger     *zap.SugaredLogger
}

type DeviceOption func(cfg *deviceCfg)

type deviceCfg struct {
	exceptions *Exceptions
	logger     *zap.SugaredLogger
	sectorSize int64
	readOnly   bool
}

// WithExceptions 指定设备及其分区表共用的诊断处理器.
func WithExceptions(e *Exceptions) DeviceOption {
	return func(cfg *deviceCfg) {
		cfg.exceptions = e
	}
}

// WithDeviceLogger 指定日志器(默认使用包级默认日志器).
func WithDeviceLogger(l *zap.SugaredLogger) DeviceOption {
	return func(cfg *deviceCfg) {
		cfg.logger = l
	}
}

// WithSectorSize 强制指定扇区大小, 常用于4Kn镜像文件.
func WithSectorSize(n int64) DeviceOption {
	return func(cfg *deviceCfg) {
		cfg.sectorSize = n
	}
}

// WithReadOnly 以只读方式打开.
func WithReadOnly() DeviceOption {
	return func(cfg *deviceCfg) {
		cfg.readOnly = true
	}
}

// OpenDevice 打开path, 优先读写方式, 失败时回退为只读.
func OpenDevice(path string, options ...DeviceOption) (*Device, error) {
	cfg := new(deviceCfg)
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Default()
	}
	if cfg.exceptions == nil {
		cfg.exceptions = NewExceptions(cfg.logger)
	}

	dev := &Device{Path: path, exceptions: cfg.exceptions, logger: cfg.logger}
	var err error
	if !cfg.readOnly {
		dev.file, err = os.OpenFile(path, os.O_RDWR, 0)
	}
	if cfg.readOnly || err != nil {
		if err != nil {
			cfg.logger.Debugf("OpenDevice(%s). Read-write open failed, fall back to read-only: %v", path, err)
		}
		dev.ReadOnly = true
		if dev.file, err = os.Open(path); err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
	}

	dev.IsBlockDevice = ioctl.IsBlockDevice(path)
	if dev.SectorSize = cfg.sectorSize; dev.SectorSize <= 0 {
		if dev.SectorSize, err = ioctl.QuerySectorSize(dev.file); err != nil {
			_ = dev.file.Close()
			return nil, err
		}
	}
	size, err := ioctl.QueryFileSize(path)
	if err != nil {
		_ = dev.file.Close()
		return nil, errors.Wrapf(err, "query size of %s", path)
	}
	dev.Length = int64(size) / dev.SectorSize
	if dev.Length == 0 {
		_ = dev.file.Close()
		return nil, errors.Errorf("%s is smaller than one sector", path)
	}
	cfg.logger.Debugf("OpenDevice(%s). Sector size %d, %d sectors, read-only %v",
		path, dev.SectorSize, dev.Length, dev.ReadOnly)
	return dev, nil
}

func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if d.ReadOnly {
		return 0, errors.Wrap(ErrReadOnly, d.Path)
	}
	return d.file.WriteAt(p, off)
}

// ReadSectors 读取自start起的count个扇区.
func (d *Device) ReadSectors(start, count int64) ([]byte, error) {
	if start < 0 || count < 0 || start+count > d.Length {
		return nil, errors.Wrapf(ErrOutsideDevice, "read sectors [%d, +%d) of %d", start, count, d.Length)
	}
	buf := make([]byte, count*d.SectorSize)
	if _, err := d.file.ReadAt(buf, start*d.SectorSize); err != nil {
		return nil, errors.Wrapf(err, "read sector %d of %s", start, d.Path)
	}
	return buf, nil
}

// WriteSectors 自start扇区起写入buf, buf长度须为扇区大小的整数倍.
func (d *Device) WriteSectors(start int64, buf []byte) error {
	if int64(len(buf))%d.SectorSize != 0 {
		return errors.Errorf("write of %d bytes is not sector aligned", len(buf))
	}
	if start < 0 || start+int64(len(buf))/d.SectorSize > d.Length {
		return errors.Wrapf(ErrOutsideDevice, "write sector %d", start)
	}
	if _, err := d.WriteAt(buf, start*d.SectorSize); err != nil {
		return errors.Wrapf(err, "write sector %d of %s", start, d.Path)
	}
	return nil
}

// Sync 刷写设备缓存.
func (d *Device) Sync() error {
	if d.ReadOnly {
		return nil
	}
	return ioctl.FlushBuffers(d.file)
}

// Geometry 覆盖整个设备的几何区域.
func (d *Device) Geometry() Geometry {
	return Geometry{Start: 0, End: d.Length - 1}
}

func (d *Device) Exceptions() *Exceptions {
	return d.exceptions
}

func (d *Device) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
