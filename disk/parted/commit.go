package parted

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/kisun-bit/undelpart/sys/ioctl"
	"github.com/kisun-bit/undelpart/util"
	"github.com/pkg/errors"
)

const (
	rereadRetries  = 5
	rereadInterval = 200 * time.Millisecond
)

// tableFingerprint 计算承载分区表的所有扇区的摘要.
func (d *Disk) tableFingerprint() (uint64, error) {
	h := xxhash.New()
	for _, s := range d.label.tableSectors(d) {
		if s < 0 || s >= d.Dev.Length {
			continue
		}
		buf, err := d.Dev.ReadSectors(s, 1)
		if err != nil {
			return 0, errors.Wrap(err, "fingerprint partition table")
		}
		_, _ = h.Write(buf)
	}
	return h.Sum64(), nil
}

// CommitToDev 校验并将内存中的分区表写入设备.
// 若设备上的分区表在读取后被外部修改, 返回 ErrStaleTable 且不写入任何数据.
func (d *Disk) CommitToDev() error {
	if d.Dev.ReadOnly {
		return d.throw(errors.Wrap(ErrReadOnly, d.Dev.Path))
	}
	if err := d.Check(); err != nil {
		return err
	}
	current, err := d.tableFingerprint()
	if err != nil {
		return d.throw(err)
	}
	if current != d.fingerprint {
		return d.throw(errors.Wrapf(ErrStaleTable, "%s", d.Dev.Path))
	}
	if err = d.label.write(d); err != nil {
		return d.throw(errors.Wrapf(err, "write %s label to %s", d.Type(), d.Dev.Path))
	}
	if err = d.Dev.Sync(); err != nil {
		return d.throw(errors.Wrapf(err, "sync %s", d.Dev.Path))
	}
	if d.fingerprint, err = d.tableFingerprint(); err != nil {
		return d.throw(err)
	}
	d.logger.Infof("CommitToDev(%s). Wrote %s label with %d partitions", d.Dev.Path, d.Type(), len(d.parts))
	return nil
}

// CommitToOS 通知内核重新加载分区表, 镜像文件无需通知.
// 优先使用BLKRRPART(设备忙时重试), 失败后回退至 `partx --update`.
func (d *Disk) CommitToOS() error {
	if !d.Dev.IsBlockDevice {
		return nil
	}
	err := util.RetryIf(context.Background(), func() error {
		return ioctl.RereadPartitionTable(d.Dev.file)
	}, ioctl.IsBusy, rereadRetries, rereadInterval)
	if err != nil {
		d.logger.Debugf("CommitToOS(%s). BLKRRPART failed, fall back to partx: %v", d.Dev.Path, err)
		code, _, errOut := ioctl.ExecV2("partx", "--update", d.Dev.Path)
		if code != 0 {
			return d.throw(errors.Wrapf(err, "inform the kernel of %s (partx: %s)", d.Dev.Path, errOut))
		}
	}
	if code, _, errOut := ioctl.ExecV2("udevadm", "settle"); code != 0 {
		d.logger.Debugf("CommitToOS(%s). udevadm settle: %s", d.Dev.Path, errOut)
	}
	return nil
}
