// Package intel implements the IntelOPAE accelerator engine: sysfs-only
// enumeration of FPGA FME/PORT devices and bitstream reprogramming via
// the fpgaconf tool. libopae exports no stable sysfs layout of its own,
// so this walks /sys/class/fpga directly, exactly as the original
// tool's intelOpaeEngine.c does.
package intel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/accel/sysfs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const (
	sysFpgaClassPath = "/sys/class/fpga"
	fmeNameFmt       = "intel-fpga-fme.%d"
	portNameFmt      = "intel-fpga-port.%d"
	uuidLenRaw       = 32
	logtag           = "IntelOPAE"
)

var intelAccelLibs = []string{
	"libopae-c.so",
	"libopae-c++.so",
}

var intelSysEntriesRW = []string{
	"userclk_freqcmd",
	"userclk_freqcntrcmd",
	"errors/clear",
}

// ops implements accel.Ops for the IntelOPAE engine. It keeps its own
// FME table so a virtual function's enumeration can link back to its
// physical parent by index (fmes[dev.FMEIndex]) rather than a shared
// pointer, per the engine's "arena, not back-pointer" design.
type ops struct {
	engine *accel.Engine
	fmes   []*accel.Device
}

// New returns the IntelOPAE accel.Engine, with its Ops wired to a fresh,
// empty FME table.
func New() *accel.Engine {
	e := &accel.Engine{
		Tag:            accel.EngineIntel,
		Name:           logtag,
		BitstreamPath:  "/usr/lib/bitstream/intel",
		ReconfigPhysfn: true,
		ReconfigVirtfn: false,
		SriovMode:      false,
		SysEntriesRW:   intelSysEntriesRW,
		LibNames:       intelAccelLibs,
	}
	o := &ops{engine: e}
	e.Ops = o
	return e
}

// Enumerate walks /sys/class/fpga/intel-fpga-dev.<slot>/ for every FME
// and PORT sub-device it finds, exactly mirroring the original
// enumerate(): a missing sysfs FPGA class is not an error (Xilinx
// hardware may be the only accelerator present).
func (o *ops) Enumerate(catalog *accel.DeviceCatalog) error {
	entries, err := os.ReadDir(sysFpgaClassPath)
	if err != nil {
		sylog.Warningf("%s: sysfs FPGA class not found: check FPGA driver inserted", logtag)
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		dot := strings.LastIndexByte(name, '.')
		if dot < 0 {
			sylog.Errorf("%s: entry %s: failed to get instance id", logtag, name)
			continue
		}
		slotID, err := strconv.Atoi(name[dot+1:])
		if err != nil {
			sylog.Errorf("%s: entry %s: failed to get instance id", logtag, name)
			continue
		}
		sysentry := filepath.Join(sysFpgaClassPath, name)

		bdf, err := busdevfnFromSymlink(filepath.Join(sysentry, "device"))
		if err != nil {
			sylog.Errorf("%s: entry %s: failed to get bdf: %v", logtag, sysentry, err)
			continue
		}

		vendorID := int(sysfs.ReadUint64(filepath.Join(sysentry, "device", "vendor")))
		deviceID := int(sysfs.ReadUint64(filepath.Join(sysentry, "device", "device")))

		base := accel.Device{
			Engine:    accel.EngineIntel,
			FuncID:    accel.UnknownFunc,
			SlotID:    slotID,
			VendorID:  vendorID,
			DeviceID:  deviceID,
			BDF:       bdf,
			FMEIndex:  -1,
			PciFnKind: accel.PciPhysical,
		}

		var fmeIndex = -1
		fmePath := filepath.Join(sysentry, fmt.Sprintf(fmeNameFmt, slotID))
		if _, err := os.Stat(fmePath); err == nil {
			fme := base
			fme.SysPathAccel = fmePath
			fme.DevPaths = []string{filepath.Join("/dev", fmt.Sprintf(fmeNameFmt, slotID))}
			added := catalog.Add(fme)
			o.fmes = append(o.fmes, added)
			fmeIndex = len(o.fmes) - 1
			sylog.Infof("%s: new FME device: name %s, instance %d, pcidev %04x:%04x, devnode %s",
				logtag, fme.BDF, fme.SlotID, fme.VendorID, fme.DeviceID, fme.DevPaths[0])
		}

		portPath := filepath.Join(sysentry, fmt.Sprintf(portNameFmt, slotID))
		if _, err := os.Stat(portPath); err == nil {
			port := base
			port.SysPathAccel = portPath
			port.DevPaths = []string{filepath.Join("/dev", fmt.Sprintf(portNameFmt, slotID))}
			port.FMEIndex = fmeIndex

			if err := o.readPortInfo(&port, sysentry); err != nil {
				sylog.Errorf("%s: port %s: %v", logtag, port.BDF, err)
				continue
			}

			added := catalog.Add(port)
			sylog.Infof("%s: new PORT device: name %s, instance %d, pcidev %04x:%04x, devnode %s, afuid %s",
				logtag, added.BDF, added.SlotID, added.VendorID, added.DeviceID, added.DevPaths[0], added.FuncHwid)
		}
	}
	return nil
}

// LoadBitstream reprograms dev's AFU with binding's bitstream via
// fpgaconf, then re-reads and verifies the AFU id matches what the
// configuration expects, mirroring the original tool's loadBitstream.
func (o *ops) LoadBitstream(dev *accel.Device, binding accel.FuncBinding) error {
	path, err := exec.LookPath("fpgaconf")
	if err != nil {
		return fmt.Errorf("%w: fpgaconf not found on PATH: %v", errs.ErrBitstream, err)
	}
	bitstream := filepath.Join(o.engine.BitstreamPath, binding.BitstreamFile)

	cmd := exec.Command(path,
		"-b", strconv.Itoa(dev.BDF.Bus),
		"-d", strconv.Itoa(dev.BDF.Device),
		"-f", strconv.Itoa(dev.BDF.Function),
		bitstream,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: device %s: engine failed to load bitstream %s: %v: %s", errs.ErrBitstream, dev.BDF, bitstream, err, out)
	}

	if err := readAfuID(dev, dev.SysPathAccel); err != nil {
		return fmt.Errorf("%w: device %s: failed to read AFU id after reconfig: %v", errs.ErrBitstream, dev.BDF, err)
	}
	if !strings.EqualFold(dev.FuncHwid, binding.HWID) {
		return fmt.Errorf("%w: device %s: expected AFU id %s after reconfig but has %s", errs.ErrBitstream, dev.BDF, binding.HWID, dev.FuncHwid)
	}

	sylog.Infof("%s: device %s: function loaded", logtag, dev.BDF)
	return nil
}

// readPortInfo fills in a PORT device's AFU id and, for a virtual
// function, resolves its physical FME parent through the physfn
// symlink.
func (o *ops) readPortInfo(dev *accel.Device, sysentry string) error {
	if err := readAfuID(dev, dev.SysPathAccel); err != nil {
		return err
	}
	dev.FuncID = o.engine.FuncHwidToIndex(dev.FuncHwid)

	if dev.FMEIndex >= 0 {
		// already linked via the sibling FME found this same pass
		return nil
	}

	physfn := filepath.Join(sysentry, "device", "physfn")
	bdf, err := busdevfnFromSymlink(physfn)
	if err != nil {
		return fmt.Errorf("%w: failed to get physfn: %v", errs.ErrEnumeration, err)
	}
	dev.PciFnKind = accel.PciVirtual

	for i, fme := range o.fmes {
		if fme.BDF == bdf {
			dev.FMEIndex = i
			return nil
		}
	}
	return fmt.Errorf("%w: failed to get attached FME for %s", errs.ErrEnumeration, bdf)
}

// readAfuID reads and canonicalizes the AFU UUID from sysfs, storing it
// as a plain string: hardware ids are validated with google/uuid here
// and then flattened back to string, never kept as a structured value.
func readAfuID(dev *accel.Device, syspathAccel string) error {
	raw, err := sysfs.ReadString(filepath.Join(syspathAccel, "afu_id"))
	if err != nil {
		return err
	}
	if len(raw) != uuidLenRaw {
		return fmt.Errorf("%w: device %s: malformed AFU id", errs.ErrEnumeration, dev.BDF)
	}
	canonical := fmt.Sprintf("%s-%s-%s-%s-%s", raw[0:8], raw[8:12], raw[12:16], raw[16:20], raw[20:32])
	if _, err := uuid.Parse(canonical); err != nil {
		return fmt.Errorf("%w: device %s: malformed AFU id %s: %v", errs.ErrEnumeration, dev.BDF, canonical, err)
	}
	dev.FuncHwid = canonical
	return nil
}

// busdevfnFromSymlink reads a sysfs device symlink ending in
// ".../0000:06:00.0" and parses its trailing bus:device.function. Bus,
// device and function are hex in sysfs/lspci notation (matching
// PciBDF.String's %02x rendering), unlike the original tool's atoi-based
// parse, which silently truncated any bus number using a-f digits.
func busdevfnFromSymlink(symlink string) (accel.PciBDF, error) {
	target, err := os.Readlink(symlink)
	if err != nil {
		return accel.PciBDF{}, err
	}

	base := filepath.Base(target)
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return accel.PciBDF{}, fmt.Errorf("failed to extract bus:device.function from %q", target)
	}
	fn, err := strconv.ParseInt(base[dot+1:], 16, 32)
	if err != nil {
		return accel.PciBDF{}, fmt.Errorf("failed to extract function from %q: %v", target, err)
	}
	bdf := base[:dot]
	colon := strings.LastIndexByte(bdf, ':')
	if colon < 0 {
		return accel.PciBDF{}, fmt.Errorf("failed to extract device from %q", target)
	}
	dev, err := strconv.ParseInt(bdf[colon+1:], 16, 32)
	if err != nil {
		return accel.PciBDF{}, fmt.Errorf("failed to extract device from %q: %v", target, err)
	}
	rest := bdf[:colon]
	colon = strings.LastIndexByte(rest, ':')
	if colon < 0 {
		return accel.PciBDF{}, fmt.Errorf("failed to extract bus from %q", target)
	}
	bus, err := strconv.ParseInt(rest[colon+1:], 16, 32)
	if err != nil {
		return accel.PciBDF{}, fmt.Errorf("failed to extract bus from %q: %v", target, err)
	}
	return accel.PciBDF{Bus: int(bus), Device: int(dev), Function: int(fn)}, nil
}
