package table

const (
	MBRSignature510               = 0x55
	MBRSignature511               = 0xAA
	MBRLogicalPartitionEntryIndex = 0
	MBREBRPartitionEntryIndex     = 1
	MBRPartitionEntryCount        = 4
	MBRDefaultLBASize             = 1 << 9
	MBRPartitionBootable          = 0x80
	MBRDiskSignatureOffset        = 440
	MBRMaxLBA                     = 1<<32 - 1
	MBRMaxLogicalPartitions       = 60
)

// MBRPartitionType 表示MBR结构下的分区类型.
type MBRPartitionType = byte

// 见 https://en.wikipedia.org/wiki/Partition_type.
const (
	Empty               MBRPartitionType = 0x00
	FAT12               MBRPartitionType = 0x01
	FAT16Small          MBRPartitionType = 0x04
	ExtendCHS           MBRPartitionType = 0x05
	FAT16               MBRPartitionType = 0x06
	NTFS                MBRPartitionType = 0x07
	FAT32               MBRPartitionType = 0x0B
	FAT32X              MBRPartitionType = 0x0C
	FAT16X              MBRPartitionType = 0x0E
	ExtendLBA           MBRPartitionType = 0x0F
	HiddenExtendCHS     MBRPartitionType = 0x15
	HiddenExtendLBA     MBRPartitionType = 0x1F
	WindowsRecoveryEnv  MBRPartitionType = 0x27
	LinuxSwap           MBRPartitionType = 0x82
	Linux               MBRPartitionType = 0x83
	LinuxExtend         MBRPartitionType = 0x85
	LinuxLVM            MBRPartitionType = 0x8E
	FreeBSD             MBRPartitionType = 0xA5
	MacOSXHFS           MBRPartitionType = 0xAF
	EFIGPTProtectiveMBR MBRPartitionType = 0xEE
	EFISystemPartition  MBRPartitionType = 0xEF
	VmwareSwap          MBRPartitionType = 0xFC
	LinuxRAID           MBRPartitionType = 0xFD
)

// MBRPartitionTypeDesc MBR分区类型的描述字典.
var MBRPartitionTypeDesc = map[MBRPartitionType]string{
	Empty:               "Empty",
	FAT12:               "FAT12",
	FAT16Small:          "FAT16 <32M",
	ExtendCHS:           "Extended",
	FAT16:               "FAT16",
	NTFS:                "HPFS/NTFS/exFAT",
	FAT32:               "W95 FAT32",
	FAT32X:              "W95 FAT32 (LBA)",
	FAT16X:              "W95 FAT16 (LBA)",
	ExtendLBA:           "W95 Ext'd (LBA)",
	HiddenExtendCHS:     "Hidden Extended",
	HiddenExtendLBA:     "Hidden W95 Ext'd (LBA)",
	WindowsRecoveryEnv:  "Windows recovery environment",
	LinuxSwap:           "Linux swap",
	Linux:               "Linux",
	LinuxExtend:         "Linux extended",
	LinuxLVM:            "Linux LVM",
	FreeBSD:             "FreeBSD",
	MacOSXHFS:           "HFS / HFS+",
	EFIGPTProtectiveMBR: "GPT",
	EFISystemPartition:  "EFI (FAT-12/16/32)",
	VmwareSwap:          "VMware VMKCORE",
	LinuxRAID:           "Linux raid autodetect",
}

// MBRExtendPartTypes MBR扩展分区类型标记集合.
var MBRExtendPartTypes = []MBRPartitionType{ExtendCHS, ExtendLBA, HiddenExtendCHS, HiddenExtendLBA, LinuxExtend}
