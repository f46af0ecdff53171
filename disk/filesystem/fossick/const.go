package fossick

const (
	Unknown   Filesystem = "raw"
	NTFS      Filesystem = "ntfs"
	FAT       Filesystem = "fat"
	EXT       Filesystem = "ext2/3/4" // 没有较好地办法从superblock域中区分这三种文件系统, 参考:https://unix.stackexchange.com/questions/123009/reliable-way-to-detect-ext2-or-ext3-or-ext4
	XFS       Filesystem = "xfs"
	OracleASM Filesystem = "oracle-asm"
	BTRFS     Filesystem = "btrfs"
	ZFS       Filesystem = "zfs"
	JFS       Filesystem = "jfs"
	APFS      Filesystem = "apfs"
	SWAP      Filesystem = "linux-swap"
)

const (
	EXTMagic        = "\x53\xEF"
	FAT16Magic      = "FAT"
	FAT32Magic      = "FAT32   "
	NTFSMagic       = "NTFS    "
	XFSMagic        = "\x58\x46\x53\x42"
	BTRFSMagic      = "_BHRfS_M"
	ZFSMagic        = "\x0c\xb1\xba\x00"
	JFSMagic        = "JFS1"
	APFSMagic       = "NXSB"
	OracleDiskMagic = "\x4f\x52\x43\x4c\x44\x49\x53\x4b"
	SwapMagic       = "SWAPSPACE2"
)

// headerProbeSize 识别签名所需读取的最大头部长度(覆盖ZFS位于128KiB处的uberblock).
const headerProbeSize = 132 << 10
