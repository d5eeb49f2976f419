// Package xilinx implements the XilinxAWS accelerator engine.
//
// See xilinx_cgo_linux.go for the libfpga_mgmt.so-backed implementation
// and xilinx_nocgo_linux.go for the build without cgo, which reports
// zero devices exactly as the original tool does when the AWS FPGA
// management library isn't installed.
package xilinx

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const (
	logtag       = "XilinxAWS"
	awsDriver    = "xdma"
	fpgaSlotMax  = 8
	sysfsDevFmt  = "/sys/bus/pci/devices/0000:%02x:%02x.%x"
)

var xilinxSysEntriesRW = []string{
	"resource0",
	"resource4",
}

// ops implements accel.Ops for the XilinxAWS engine. It keeps a
// back-pointer to its owning engine so enumeration can resolve a
// slot's AFI hwid back to a logical FuncID, the same pattern the Intel
// engine uses.
type ops struct {
	engine *accel.Engine
}

// New returns the XilinxAWS accel.Engine. It carries no required
// shared libraries of its own in the Registry sense: libfpga_mgmt.so is
// resolved with dlopen at enumeration time and its absence is not
// fatal, so LibNames is left empty and the engine is always considered
// installed.
func New() *accel.Engine {
	e := &accel.Engine{
		Tag:            accel.EngineXilinx,
		Name:           logtag,
		ReconfigPhysfn: true,
		ReconfigVirtfn: false,
		SriovMode:      false,
		SysEntriesRW:   xilinxSysEntriesRW,
	}
	o := &ops{engine: e}
	e.Ops = o
	return e
}

func (o *ops) Enumerate(catalog *accel.DeviceCatalog) error {
	return enumerateViaLibfpga(o.engine, catalog)
}

// LoadBitstream reprograms slotID's image with binding's AGFI id via
// fpga-load-local-image, then re-reads and verifies the loaded image,
// mirroring the original tool's loadBitstream.
func (o *ops) LoadBitstream(dev *accel.Device, binding accel.FuncBinding) error {
	path, err := exec.LookPath("fpga-load-local-image")
	if err != nil {
		return fmt.Errorf("%w: fpga-load-local-image not found on PATH: %v", errs.ErrBitstream, err)
	}

	cmd := exec.Command(path, "-S", fmt.Sprintf("%d", dev.SlotID), "-I", binding.HWID)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: device %s: engine failed to load AGFI %s: %v: %s", errs.ErrBitstream, dev.BDF, binding.HWID, err, out)
	}

	hwid, err := loadBitstreamViaLibfpga(dev.SlotID)
	if err != nil {
		return err
	}
	if hwid != "" {
		dev.FuncHwid = hwid
	}

	if dev.FuncHwid != binding.HWID {
		return fmt.Errorf("%w: device %s: expected AGFI id %s after reconfig but has %s", errs.ErrBitstream, dev.BDF, binding.HWID, dev.FuncHwid)
	}

	sylog.Infof("%s: device %s: function loaded", logtag, dev.BDF)
	return nil
}

func sysfsDevPath(bus, device, function int) string {
	return fmt.Sprintf(sysfsDevFmt, bus, device, function)
}

// devNodesForSlot globs for every /dev/xdma<slot>* entry the driver
// created for slot, replacing the original tool's popen("ls ...")-based
// fspathGetEntries.
func devNodesForSlot(slot int) []string {
	matches, _ := filepath.Glob(fmt.Sprintf("/dev/%s%d*", awsDriver, slot))
	return matches
}
