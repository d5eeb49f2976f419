package accel

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseTokens(t *testing.T) {
	assert.DeepEqual(t, ParseTokens(" 3b:00.0 , 5e:00.0 ,"), []string{"3b:00.0", "5e:00.0"})
	assert.Assert(t, ParseTokens("") == nil)
	assert.Assert(t, ParseTokens("   ") == nil)
}

func TestSelectorSelectDevicesAll(t *testing.T) {
	catalog := NewDeviceCatalog(0)
	catalog.Add(Device{SlotID: 0, BDF: PciBDF{Bus: 0x3b}})
	catalog.Add(Device{SlotID: 1, BDF: PciBDF{Bus: 0x5e}})

	s := NewSelector(NewRegistry(), NewCatalog(0))
	devs, err := s.SelectDevices(catalog, []string{"all"})
	assert.NilError(t, err)
	assert.Equal(t, len(devs), 2)
}

func TestSelectorSelectDevicesByBDFAndSlot(t *testing.T) {
	catalog := NewDeviceCatalog(0)
	catalog.Add(Device{SlotID: 0, BDF: PciBDF{Bus: 0x3b, Device: 0, Function: 0}})
	catalog.Add(Device{SlotID: 1, BDF: PciBDF{Bus: 0x5e, Device: 0, Function: 0}})

	s := NewSelector(NewRegistry(), NewCatalog(0))
	devs, err := s.SelectDevices(catalog, []string{"3b:00.0", "1"})
	assert.NilError(t, err)
	assert.Equal(t, len(devs), 2)
	assert.Equal(t, devs[0].SlotID, 0)
	assert.Equal(t, devs[1].SlotID, 1)
}

func TestSelectorSelectDevicesUnknownToken(t *testing.T) {
	catalog := NewDeviceCatalog(0)
	catalog.Add(Device{SlotID: 0, BDF: PciBDF{Bus: 0x3b}})

	s := NewSelector(NewRegistry(), NewCatalog(0))
	_, err := s.SelectDevices(catalog, []string{"ff:00.0"})
	assert.ErrorContains(t, err, "no enumerated accelerator matches")
}

func TestResolveFunctionsReplicatesLastToken(t *testing.T) {
	s := NewSelector(NewRegistry(), NewCatalog(0))
	attached := []*Device{{}, {}, {}}
	names, err := s.ResolveFunctions(attached, []string{"crypto"})
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"crypto", "crypto", "crypto"})

	names, err = s.ResolveFunctions(attached, []string{"crypto", "compress"})
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"crypto", "compress", "compress"})
}

func TestResolveFunctionsEmptyPreservesCurrentFunction(t *testing.T) {
	cat := NewCatalog(1)
	cat.Add(Function{Name: "crypto"})
	s := NewSelector(NewRegistry(), cat)

	attached := []*Device{
		{FuncID: 0},
		{FuncID: UnknownFunc},
	}
	names, err := s.ResolveFunctions(attached, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"crypto", ""})
}

type fakeOps struct {
	loaded []FuncBinding
}

func (f *fakeOps) Enumerate(catalog *DeviceCatalog) error { return nil }

func (f *fakeOps) LoadBitstream(dev *Device, binding FuncBinding) error {
	f.loaded = append(f.loaded, binding)
	dev.FuncHwid = binding.HWID
	return nil
}

func TestSelectorReconcileSkipsAlreadyLoaded(t *testing.T) {
	cat := NewCatalog(1)
	cat.Add(Function{Name: "crypto"})

	ops := &fakeOps{}
	engine := &Engine{
		Tag:            EngineIntel,
		Name:           "IntelOPAE",
		Installed:      true,
		ReconfigPhysfn: true,
		Ops:            ops,
		Functions:      []FuncBinding{{FuncID: 0, HWID: "abc"}},
	}
	reg := NewRegistry()
	reg.Register(engine)

	dev := &Device{Engine: EngineIntel, FuncID: 0, FuncHwid: "abc", PciFnKind: PciPhysical}

	s := NewSelector(reg, cat)
	err := s.Reconcile([]*Device{dev}, []string{"crypto"})
	assert.NilError(t, err)
	assert.Equal(t, len(ops.loaded), 0, "already-loaded device must not be reprogrammed")
}

// hwidOnlyOps mimics how the real Intel and Xilinx engines enumerate:
// Enumerate only ever learns a device's hwid from hardware, starts the
// device at UnknownFunc, then resolves FuncID itself via
// engine.FuncHwidToIndex, the same step intel_linux.go's readPortInfo and
// xilinx_cgo_linux.go's enumerateViaLibfpga take. If that resolution
// failed, the device would stay at UnknownFunc and Reconcile would
// reprogram it, which TestSelectorReconcileSkipsAfterRealEnumerate catches.
type hwidOnlyOps struct {
	engine *Engine
	hwid   string
	loaded []FuncBinding
}

func (o *hwidOnlyOps) Enumerate(catalog *DeviceCatalog) error {
	dev := Device{Engine: EngineIntel, FuncID: UnknownFunc, FuncHwid: o.hwid, PciFnKind: PciPhysical}
	dev.FuncID = o.engine.FuncHwidToIndex(dev.FuncHwid)
	catalog.Add(dev)
	return nil
}

func (o *hwidOnlyOps) LoadBitstream(dev *Device, binding FuncBinding) error {
	o.loaded = append(o.loaded, binding)
	dev.FuncHwid = binding.HWID
	return nil
}

func TestSelectorReconcileSkipsAfterRealEnumerate(t *testing.T) {
	cat := NewCatalog(1)
	cat.Add(Function{Name: "crypto"})

	ops := &hwidOnlyOps{hwid: "abc"}
	engine := &Engine{
		Tag:            EngineIntel,
		Name:           "IntelOPAE",
		Installed:      true,
		ReconfigPhysfn: true,
		Ops:            ops,
		Functions:      []FuncBinding{{FuncID: 0, HWID: "abc"}},
	}
	ops.engine = engine
	reg := NewRegistry()
	reg.Register(engine)

	devices := NewDeviceCatalog(0)
	assert.NilError(t, engine.Ops.Enumerate(devices))
	attached := devices.All()
	assert.Equal(t, attached[0].FuncID, 0, "enumeration must resolve FuncID from hwid, not leave it UnknownFunc")

	s := NewSelector(reg, cat)
	err := s.Reconcile(attached, []string{"crypto"})
	assert.NilError(t, err)
	assert.Equal(t, len(ops.loaded), 0, "already-loaded device discovered via real enumeration must not be reprogrammed")
}

func TestSelectorReconcileLoadsWhenMismatched(t *testing.T) {
	cat := NewCatalog(1)
	cat.Add(Function{Name: "crypto"})

	ops := &fakeOps{}
	engine := &Engine{
		Tag:            EngineIntel,
		Installed:      true,
		ReconfigPhysfn: true,
		Ops:            ops,
		Functions:      []FuncBinding{{FuncID: 0, HWID: "abc"}},
	}
	reg := NewRegistry()
	reg.Register(engine)

	dev := &Device{Engine: EngineIntel, FuncID: UnknownFunc, PciFnKind: PciPhysical}

	s := NewSelector(reg, cat)
	err := s.Reconcile([]*Device{dev}, []string{"crypto"})
	assert.NilError(t, err)
	assert.Equal(t, len(ops.loaded), 1)
	assert.Equal(t, dev.FuncHwid, "abc")
}

func TestSelectorReconcileRefusesUnsupportedKind(t *testing.T) {
	cat := NewCatalog(1)
	cat.Add(Function{Name: "crypto"})

	engine := &Engine{
		Tag:       EngineIntel,
		Installed: true,
		Ops:       &fakeOps{},
		Functions: []FuncBinding{{FuncID: 0, HWID: "abc"}},
	}
	reg := NewRegistry()
	reg.Register(engine)

	dev := &Device{Engine: EngineIntel, FuncID: UnknownFunc, PciFnKind: PciVirtual}

	s := NewSelector(reg, cat)
	err := s.Reconcile([]*Device{dev}, []string{"crypto"})
	assert.ErrorContains(t, err, "cannot reconfigure")
}
