package schema

import "github.com/google/uuid"

// Kernel group flags. Masks[0] entries are real EVENT_TRACE_FLAG_* values;
// the remaining words use the high-3-bit-selects-word encoding from the
// group mask glossary entry (bits [31:29] select the word, bits [28:0] are
// ORed in).
const (
	ProcessBaseFlag uint32 = 0x00000001 // EVENT_TRACE_FLAG_PROCESS, always on
	NoSysConfigFlag uint32 = 0x00000001 | (7 << 29)

	flagProcess           uint32 = 0x00000001
	flagThread            uint32 = 0x00000002
	flagImageLoad         uint32 = 0x00000004
	flagProcessCounters   uint32 = 0x00000008
	flagDiskIO            uint32 = 0x00000100
	flagFileIOName        uint32 = 0x00000200
	flagDiskIOInit        uint32 = 0x00000400
	flagMemoryPageFaults  uint32 = 0x00001000
	flagMemoryHardFaults  uint32 = 0x00002000
	flagVAMap             uint32 = 0x00008000
	flagNetwork           uint32 = 0x00010000
	flagRegistry          uint32 = 0x00020000

	// Masks[1]-selecting flags encode synthetic high bits the way
	// event_kernel.rs's Major enum does for values that do not fit the
	// real EVENT_TRACE_FLAG_* space (context switch, memory, etc.).
	flagContextSwitch uint32 = 0x00000004 | (1 << 29)
	flagMemory        uint32 = 0x00000001 | (1 << 29)
	flagProfile       uint32 = 0x00000002 | (1 << 29)
)

const (
	NoSysConfigName  = "NoSysConfig"
	ProcessMajorName = "Process"
)

// DefaultRegistry is the static event group table: display names, provider
// GUIDs, enable flags and opcode lists. GUIDs are the well-known classic
// NT kernel logger provider GUIDs.
var DefaultRegistry = NewRegistry([]Major{
	{
		Name: ProcessMajorName,
		GUID: uuid.MustParse("3d6fa8d0-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagProcess,
		Minors: []Minor{
			{Name: "Start", Opcode: 1},
			{Name: "End", Opcode: 2},
			{Name: "DCStart", Opcode: 3},
			{Name: "DCEnd", Opcode: 4},
			{Name: "Terminate", Opcode: 11},
			{Name: "Defunct", Opcode: 39},
		},
	},
	{
		Name: "Thread",
		GUID: uuid.MustParse("3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagThread,
		Minors: []Minor{
			{Name: "Start", Opcode: 1},
			{Name: "End", Opcode: 2},
			{Name: "DCStart", Opcode: 3},
			{Name: "DCEnd", Opcode: 4},
			{Name: "ContextSwitch", Opcode: 36},
		},
	},
	{
		Name: "Image",
		GUID: uuid.MustParse("2cb15d1d-5fc1-11d2-abe1-00a0c911f518"),
		Flag: flagImageLoad,
		Minors: []Minor{
			{Name: "Load", Opcode: 10},
			{Name: "Unload", Opcode: 2},
			{Name: "DCStart", Opcode: 3},
			{Name: "DCEnd", Opcode: 4},
		},
	},
	{
		Name: "ProcessCounters",
		GUID: uuid.MustParse("3d6fa8d0-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagProcessCounters,
		Minors: []Minor{
			{Name: "PerfCtr", Opcode: 32},
			{Name: "PerfCtrRundown", Opcode: 33},
		},
	},
	{
		Name: "DiskIo",
		GUID: uuid.MustParse("3d6fa8d4-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagDiskIO,
		Minors: []Minor{
			{Name: "Read", Opcode: 10},
			{Name: "Write", Opcode: 11},
			{Name: "ReadInit", Opcode: 12},
			{Name: "WriteInit", Opcode: 13},
			{Name: "FlushBuffers", Opcode: 14},
			{Name: "FlushInit", Opcode: 15},
		},
	},
	{
		Name: "FileIoName",
		GUID: uuid.MustParse("90cbdc39-4a3e-11d1-84f4-0000f80464e3"),
		Flag: flagFileIOName,
		Minors: []Minor{
			{Name: "Name", Opcode: 0},
			{Name: "FileCreate", Opcode: 32},
			{Name: "FileDelete", Opcode: 35},
			{Name: "FileRundown", Opcode: 36},
		},
	},
	{
		Name: "DiskIoInit",
		GUID: uuid.MustParse("3d6fa8d4-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagDiskIOInit,
		Minors: []Minor{
			{Name: "ReadInit", Opcode: 12},
			{Name: "WriteInit", Opcode: 13},
		},
	},
	{
		Name: "MemoryPageFaults",
		GUID: uuid.MustParse("3d6fa8d3-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagMemoryPageFaults,
		Minors: []Minor{
			{Name: "TransitionFault", Opcode: 10},
			{Name: "DemandZeroFault", Opcode: 11},
			{Name: "CopyOnWrite", Opcode: 12},
			{Name: "GuardPageFault", Opcode: 13},
			{Name: "HardPageFault", Opcode: 14},
		},
	},
	{
		Name: "MemoryHardFaults",
		GUID: uuid.MustParse("3d6fa8d3-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagMemoryHardFaults,
		Minors: []Minor{
			{Name: "HardFault", Opcode: 32},
		},
	},
	{
		Name: "VaMap",
		GUID: uuid.MustParse("3d6fa8d3-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagVAMap,
		Minors: []Minor{
			{Name: "MapFile", Opcode: 37},
			{Name: "UnmapFile", Opcode: 38},
		},
	},
	{
		Name: "TcpIp",
		GUID: uuid.MustParse("9a280ac0-c8e0-11d1-84e2-00c04fb998a2"),
		Flag: flagNetwork,
		Minors: []Minor{
			{Name: "Send", Opcode: 10},
			{Name: "Receive", Opcode: 11},
			{Name: "Connect", Opcode: 12},
			{Name: "Disconnect", Opcode: 13},
			{Name: "Retransmit", Opcode: 14},
			{Name: "Accept", Opcode: 15},
		},
	},
	{
		Name: "UdpIp",
		GUID: uuid.MustParse("bf3a50c5-a9c9-4988-a005-2df0b7c80f80"),
		Flag: flagNetwork,
		Minors: []Minor{
			{Name: "Send", Opcode: 10},
			{Name: "Receive", Opcode: 11},
		},
	},
	{
		Name: "Registry",
		GUID: uuid.MustParse("ae53722e-c863-11d2-8659-00c04fa321a1"),
		Flag: flagRegistry,
		Minors: []Minor{
			{Name: "Create", Opcode: 10},
			{Name: "Open", Opcode: 11},
			{Name: "Delete", Opcode: 12},
			{Name: "QueryValue", Opcode: 13},
			{Name: "SetValue", Opcode: 14},
			{Name: "DeleteValue", Opcode: 15},
			{Name: "QueryKey", Opcode: 16},
			{Name: "Close", Opcode: 27},
		},
	},
	{
		Name: "ContextSwitch",
		GUID: uuid.MustParse("3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagContextSwitch,
		Minors: []Minor{
			{Name: "ContextSwitch", Opcode: 36},
		},
	},
	{
		Name: "Memory",
		GUID: uuid.MustParse("3d6fa8d3-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagMemory,
		Minors: []Minor{
			{Name: "WorkingSetInfo", Opcode: 38},
		},
	},
	{
		Name: "Profile",
		GUID: uuid.MustParse("3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c"),
		Flag: flagProfile,
		Minors: []Minor{
			{Name: "Sample", Opcode: 46},
		},
	},
	{
		Name: NoSysConfigName,
		GUID: uuid.MustParse("01853a65-418f-4f36-aefc-dc0f1d2fd235"),
		Flag: NoSysConfigFlag,
		Minors: []Minor{
			{Name: "SysConfigEnd", Opcode: 1},
		},
	},
})
