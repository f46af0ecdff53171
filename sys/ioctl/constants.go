package ioctl

// ########################################## Linux平台相关 ##########################################

const (
	SysClassBlock = "/sys/class/block"
	DevDir        = "/dev"
)

// 块设备ioctl请求码, 见 linux/fs.h.
const (
	LinuxIOCTLGetBlockSize     = 0x00001260 // BLKGETSIZE, 以512字节为单位.
	LinuxIOCTLRereadPartTable  = 0x0000125F // BLKRRPART, 通知内核重读分区表.
	LinuxIOCTLGetSectorSize    = 0x00001268 // BLKSSZGET, 逻辑扇区大小.
	LinuxIOCTLGetBlockSize64   = 0x80081272 // BLKGETSIZE64, 获取设备大小.
	LinuxIOCTLFlushBufferCache = 0x00001261 // BLKFLSBUF.
)

const DefaultSectorSize = 512

// ignoredBlockPrefixes 枚举磁盘时忽略的设备名前缀.
var ignoredBlockPrefixes = []string{
	"loop",
	"ram",
	"zram",
	"sr",
	"fd",
	"dm-",
	"md",
	"nbd",
}
