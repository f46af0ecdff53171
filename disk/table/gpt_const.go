package table

const (
	GPTPartitionEntryCount = 128
	GPTPartitionEntrySize  = 128
	GPTDefaultLBASize      = 512
	GPTHeaderSize          = 92
	GPTRevision            = 0x00010000
	GPTHeaderLBA           = 1
	GPTEntriesLBA          = 2
)

const GPTSignature = "EFI PART"

type GPTPartitionType = string

// 见 http://en.wikipedia.org/wiki/GUID_Partition_Table#Partition_type_GUIDs
const (
	BlankEmptyPart      GPTPartitionType = "00000000-0000-0000-0000-000000000000"
	GEFISystemPartition GPTPartitionType = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	BIOSBootPartition   GPTPartitionType = "21686148-6449-6E6F-744E-656564454649"
	MicroMSR            GPTPartitionType = "E3C9E316-0B5C-4DB8-817D-F92DF00215AE"
	BasicDataPartition  GPTPartitionType = "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"
	MicroMRE            GPTPartitionType = "DE94BBA4-06D1-4D40-A16A-BFD50179D6AC"
	LinuxFSData         GPTPartitionType = "0FC63DAF-8483-4772-8E79-3D69D8477DE4"
	RAIDPartition       GPTPartitionType = "A19D880F-05FC-4D3B-A006-743F0F84911E"
	SwapPartition       GPTPartitionType = "0657FD6D-A4AB-43C4-84E5-0933C84B4F4F"
	LVMPartition        GPTPartitionType = "E6D6D379-F507-44C2-A23C-238F2A3DF928"
	HomePartition       GPTPartitionType = "933AC7E1-2EB4-4F13-B844-0E14E2AEF915"
	LUKSPartition       GPTPartitionType = "CA7D7CCB-63ED-4C53-861C-1742536059CC"
	HFSPlusPartition    GPTPartitionType = "48465300-0000-11AA-AA11-00306543ECAC"
	ZFS                 GPTPartitionType = "6A898CC3-1DD2-11B2-99A6-080020736631"
)

var GPTPartitionTypeDesc = map[GPTPartitionType]string{
	BlankEmptyPart:      "Blank Or Empty",
	GEFISystemPartition: "EFI System",
	BIOSBootPartition:   "BIOS boot",
	MicroMSR:            "Microsoft reserved",
	BasicDataPartition:  "Microsoft basic data",
	MicroMRE:            "Windows recovery environment",
	LinuxFSData:         "Linux filesystem",
	RAIDPartition:       "Linux RAID",
	SwapPartition:       "Linux swap",
	LVMPartition:        "Linux LVM",
	HomePartition:       "Linux home",
	LUKSPartition:       "Linux LUKS",
	HFSPlusPartition:    "Apple HFS/HFS+",
	ZFS:                 "Solaris /usr & Apple ZFS",
}
