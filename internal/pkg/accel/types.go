// Package accel holds the container accelerator provisioning engine's core
// data model: the acceleration function catalog, the engine registry, the
// device catalog, and the device/function selector. Sysfs, cgroup,
// namespace and mount primitives live in sibling packages; this package
// only holds the values they operate on.
package accel

import "fmt"

// UnknownFunc is the sentinel function id meaning "not in the catalog",
// mirroring the original tool's ACCELFUNC_UNKNOWN.
const UnknownFunc = -1

// EngineTag names one of the two statically known accelerator back ends.
type EngineTag int

const (
	EngineIntel EngineTag = iota
	EngineXilinx
	engineMax
)

func (t EngineTag) String() string {
	switch t {
	case EngineIntel:
		return "IntelOPAE"
	case EngineXilinx:
		return "XilinxAWS"
	default:
		return "unknown"
	}
}

// PciFunctionKind distinguishes a PCIe physical function from one of its
// SR-IOV virtual functions.
type PciFunctionKind int

const (
	PciPhysical PciFunctionKind = iota
	PciVirtual
)

// PciBDF is a PCIe (bus, device, function) triple.
type PciBDF struct {
	Bus      int
	Device   int
	Function int
}

// String renders the canonical "bb:dd.f" form used throughout sysfs,
// config files and the CLI's --devices tokens.
func (b PciBDF) String() string {
	return fmt.Sprintf("%02x:%02x.%x", b.Bus, b.Device, b.Function)
}

// Function is a logical acceleration operation, unique (case-insensitively)
// within a Catalog and assigned a dense id by insertion order.
type Function struct {
	Name        string
	Description string
}

// FuncBinding is a per-engine mapping from a logical function id to the
// vendor-specific artefact that realises it.
type FuncBinding struct {
	FuncID        int
	HWID          string // Intel: AFU UUID; Xilinx: AGFI id
	Hugepage2M    int
	Hugepage1G    int
	BitstreamFile string
}

// MountPath is a bind mount an engine needs inside the container, applied
// unconditionally whenever the engine contributes a device to the
// attached set.
type MountPath struct {
	Src    string
	Dst    string
	RdOnly bool
}

// Ops is the capability set a plug-in engine exposes: enumerate its
// devices, and reprogram one with a new function's bitstream. This
// replaces the original's pair of raw function pointers with a plain Go
// interface, per the engine-dispatch design note.
type Ops interface {
	// Enumerate appends every device the engine currently exposes onto
	// catalog, consulting and updating fmeIndex bookkeeping owned by the
	// caller is not required: implementations keep any such state
	// internally (see engine/intel's FME table).
	Enumerate(catalog *DeviceCatalog) error
	// LoadBitstream reprograms dev with the bitstream described by
	// binding, blocking until the loader exits and the new hardware id
	// has been confirmed.
	LoadBitstream(dev *Device, binding FuncBinding) error
}

// Engine is a named accelerator back end.
type Engine struct {
	Tag             EngineTag
	Name            string
	BitstreamPath   string
	ReconfigPhysfn  bool
	ReconfigVirtfn  bool
	SriovMode       bool
	Mounts          []MountPath
	SysEntriesRW    []string // sysfs attribute names, relative to a device, made world rw
	LibNames        []string // required shared library sonames
	LibPaths        map[string]string // soname -> resolved absolute path, filled by the registry probe
	Functions       []FuncBinding
	Installed       bool
	Ops             Ops
}

// FuncConf returns the binding for a given logical function id, or nil if
// the engine does not carry one.
func (e *Engine) FuncConf(funcID int) *FuncBinding {
	for i := range e.Functions {
		if e.Functions[i].FuncID == funcID {
			return &e.Functions[i]
		}
	}
	return nil
}

// FuncHwidToIndex returns the logical function id whose binding's hardware
// id matches hwid (case-insensitive), or UnknownFunc.
func (e *Engine) FuncHwidToIndex(hwid string) int {
	for _, b := range e.Functions {
		if equalFold(b.HWID, hwid) {
			return b.FuncID
		}
	}
	return UnknownFunc
}

// ReconfigSupport reports whether the engine can reprogram a device of the
// given PCIe function kind.
func (e *Engine) ReconfigSupport(kind PciFunctionKind) bool {
	switch kind {
	case PciPhysical:
		return e.ReconfigPhysfn
	case PciVirtual:
		return e.ReconfigVirtfn
	default:
		return false
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Device is a single enumerated accelerator.
type Device struct {
	Engine        EngineTag
	FuncID        int // currently loaded function, or UnknownFunc
	FuncHwid      string
	DevPaths      []string // one or more /dev node paths
	SysPathAccel  string   // accel device syspath to bind mount (may be empty)
	SysPathEngine string   // engine device syspath to bind mount (may be empty)
	SlotID        int
	VendorID      int
	DeviceID      int
	BDF           PciBDF
	PciFnKind     PciFunctionKind
	// FMEIndex is the index into engine/intel's internal FME table of a
	// PORT device's FME: its sibling FME for a physical function, its
	// physfn parent for a virtual function; -1 for FME devices themselves
	// and for devices of engines with no such linkage. This realizes the
	// "arena+index, not a raw back-pointer" design note.
	FMEIndex int
}

// DeviceCatalog is the full set of enumerated accelerator devices. Its
// backing array is never reallocated once built for a run, so Device
// pointers handed out to an AttachedSet stay valid for the run's duration.
type DeviceCatalog struct {
	devices []Device
}

// NewDeviceCatalog returns an empty catalog with room for capacity
// devices before its backing array has to grow.
func NewDeviceCatalog(capacity int) *DeviceCatalog {
	return &DeviceCatalog{devices: make([]Device, 0, capacity)}
}

// Add appends d to the catalog and returns a pointer to the stored copy.
// A later Add may grow the backing array, after which that pointer refers
// to a stale copy; pointers taken from All once enumeration is done stay
// valid.
func (c *DeviceCatalog) Add(d Device) *Device {
	c.devices = append(c.devices, d)
	return &c.devices[len(c.devices)-1]
}

// All returns every enumerated device.
func (c *DeviceCatalog) All() []*Device {
	out := make([]*Device, len(c.devices))
	for i := range c.devices {
		out[i] = &c.devices[i]
	}
	return out
}

// Len returns the number of enumerated devices.
func (c *DeviceCatalog) Len() int { return len(c.devices) }
