//go:build linux && cgo
// +build linux,cgo

// Package xilinx implements the XilinxAWS accelerator engine on top of
// the AWS FPGA SDK's libfpga_mgmt.so, loaded with dlopen rather than
// linked directly: the library, like the Intel OPAE one, is only
// present on hosts that actually carry the vendor driver stack, and the
// original tool treats its absence as "zero Xilinx devices", not a
// fatal error.
package xilinx

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <fpga_mgmt.h>

typedef int (*get_slots_fn)(struct fpga_slot_spec *, int);
typedef int (*describe_image_fn)(int, struct fpga_mgmt_image_info *, uint32_t);

static void *accelhook_dlopen(const char *path) {
	return dlopen(path, RTLD_NOW);
}

static get_slots_fn accelhook_lookup_get_slots(void *handle) {
	return (get_slots_fn) dlsym(handle, "fpga_pci_get_all_slot_specs");
}

static describe_image_fn accelhook_lookup_describe_image(void *handle) {
	return (describe_image_fn) dlsym(handle, "fpga_mgmt_describe_local_image");
}

static int accelhook_get_slots(get_slots_fn fn, struct fpga_slot_spec *slots, int n) {
	return fn(slots, n);
}

static int accelhook_describe_image(describe_image_fn fn, int slot, struct fpga_mgmt_image_info *info) {
	return fn(slot, info, 0);
}

static struct fpga_pci_bar_id accelhook_app_pf(struct fpga_slot_spec *s) {
	return s->map[FPGA_APP_PF];
}

static struct fpga_pci_bar_id accelhook_mgmt_pf(struct fpga_slot_spec *s) {
	return s->map[FPGA_MGMT_PF];
}
*/
import "C"

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const libMgmtSoname = "libfpga_mgmt.so"

// enumerateViaLibfpga loads libfpga_mgmt.so and walks every FPGA slot it
// reports, mirroring the original tool's enumerate(). A missing library
// is logged and treated as zero devices, never an error.
func enumerateViaLibfpga(engine *accel.Engine, catalog *accel.DeviceCatalog) error {
	cname := C.CString(libMgmtSoname)
	defer C.free(unsafe.Pointer(cname))

	handle := C.accelhook_dlopen(cname)
	if handle == nil {
		sylog.Warningf("%s: library %s not installed", logtag, libMgmtSoname)
		return nil
	}
	defer C.dlclose(handle)

	getSlots := C.accelhook_lookup_get_slots(handle)
	describeImage := C.accelhook_lookup_describe_image(handle)
	if getSlots == nil || describeImage == nil {
		return fmt.Errorf("%w: library %s: symbol not found", errs.ErrEnumeration, libMgmtSoname)
	}

	var slots [fpgaSlotMax]C.struct_fpga_slot_spec
	if C.accelhook_get_slots(getSlots, &slots[0], C.int(len(slots))) < 0 {
		return fmt.Errorf("%w: failed to get FPGA slots", errs.ErrEnumeration)
	}

	for slot := 0; slot < len(slots); slot++ {
		appPF := C.accelhook_app_pf(&slots[slot])
		if appPF.vendor_id == 0 {
			continue
		}

		var info C.struct_fpga_mgmt_image_info
		if C.accelhook_describe_image(describeImage, C.int(slot), &info) < 0 {
			return fmt.Errorf("%w: slot %d: failed to get image info", errs.ErrEnumeration, slot)
		}
		mgmtPF := C.accelhook_mgmt_pf(&slots[slot])

		afi := strings.TrimRight(C.GoString(&info.ids.afi_id[0]), "\x00")

		dev := accel.Device{
			Engine:        accel.EngineXilinx,
			FuncID:        engine.FuncHwidToIndex(afi),
			FuncHwid:      afi,
			SlotID:        slot,
			PciFnKind:     accel.PciPhysical,
			VendorID:      int(appPF.vendor_id),
			DeviceID:      int(appPF.device_id),
			BDF:           accel.PciBDF{Bus: int(appPF.bus), Device: int(appPF.dev), Function: int(appPF._func)},
			DevPaths:      devNodesForSlot(slot),
			SysPathAccel:  sysfsDevPath(int(appPF.bus), int(appPF.dev), int(appPF._func)),
			SysPathEngine: sysfsDevPath(int(mgmtPF.bus), int(mgmtPF.dev), int(mgmtPF._func)),
		}
		catalog.Add(dev)
	}
	return nil
}

// loadBitstreamViaLibfpga re-describes slotID's image after
// fpga-load-local-image has run, filling hwid with the resulting AFI id.
func loadBitstreamViaLibfpga(slotID int) (string, error) {
	cname := C.CString(libMgmtSoname)
	defer C.free(unsafe.Pointer(cname))

	handle := C.accelhook_dlopen(cname)
	if handle == nil {
		return "", nil
	}
	defer C.dlclose(handle)

	describeImage := C.accelhook_lookup_describe_image(handle)
	if describeImage == nil {
		return "", nil
	}

	var info C.struct_fpga_mgmt_image_info
	if C.accelhook_describe_image(describeImage, C.int(slotID), &info) < 0 {
		return "", fmt.Errorf("%w: slot %d: failed to get image info", errs.ErrBitstream, slotID)
	}
	return strings.TrimRight(C.GoString(&info.ids.afi_id[0]), "\x00"), nil
}
