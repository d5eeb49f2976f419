// Package provision wires every reconciled accelerator device into a
// running container: it mounts device nodes, sysfs paths and engine
// libraries into the container's rootfs, whitelists the devices in its
// devices cgroup, and raises its hugetlb/memlock limits, mirroring the
// original tool's containerSetup.
package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/accelcgroup"
	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/accel/hostfs"
	"github.com/accelhook/accelhook/internal/pkg/accel/nsguard"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const (
	bytesPer2M = 2 * 1024 * 1024
	bytesPer1G = 1024 * 1024 * 1024
)

// Configure provisions every device in attached, whose FuncID/FuncHwid
// fields are assumed already reconciled by accel.Selector.Reconcile,
// into pid's container at rootfs. It always leaves pid's mount
// namespace again before returning, success or not.
func Configure(world *accel.World, pid int, rootfs string, attached []*accel.Device) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle, err := nsguard.Enter(pid)
	if err != nil {
		return err
	}
	defer func() {
		if lerr := handle.Leave(); lerr != nil {
			sylog.Errorf("%v", lerr)
		}
	}()

	mountedEngines := make(map[accel.EngineTag]bool, len(attached))
	var totalHugepage2M, totalHugepage1G int

	for _, dev := range attached {
		engine := world.Registry.Engine(dev.Engine)
		if engine == nil {
			return fmt.Errorf("%w: device %s: no engine registered for it", errs.ErrProvisioning, dev.BDF)
		}

		if binding := engine.FuncConf(dev.FuncID); binding != nil {
			totalHugepage2M += binding.Hugepage2M
			totalHugepage1G += binding.Hugepage1G
		}

		if !mountedEngines[dev.Engine] {
			if err := mountEngineAssets(rootfs, engine); err != nil {
				return err
			}
			mountedEngines[dev.Engine] = true
		}

		if err := mountDeviceAssets(rootfs, dev, engine); err != nil {
			return err
		}
	}

	if len(mountedEngines) > 0 {
		if err := hostfs.LdconfigCacheUpdate(rootfs); err != nil {
			return err
		}
	}

	if err := accelcgroup.WithDevicesRW(rootfs, func() error {
		for _, dev := range attached {
			for _, devpath := range dev.DevPaths {
				if err := accelcgroup.AllowDevice(rootfs, devpath); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := accelcgroup.SetHugetlbLimits(pid, totalHugepage2M, totalHugepage1G); err != nil {
		return err
	}

	memBytes := uint64(totalHugepage2M)*bytesPer2M + uint64(totalHugepage1G)*bytesPer1G
	if memBytes > 0 {
		if err := accelcgroup.SetMemlockLimit(pid, memBytes); err != nil {
			sylog.Warningf("memlock limit not raised: %v", err)
		}
	}

	return nil
}

// mountEngineAssets ships engine's generic mounts and resolved shared
// libraries (plus every versioned symlink alongside each one) into
// rootfs. Run once per engine that contributed an attached device, not
// once per device.
func mountEngineAssets(rootfs string, engine *accel.Engine) error {
	for _, m := range engine.Mounts {
		if err := hostfs.MountFile(rootfs, m.Src, m.Dst, false, m.RdOnly, false); err != nil {
			return err
		}
	}

	for soname, libPath := range engine.LibPaths {
		if err := hostfs.MountFile(rootfs, libPath, "", false, true, false); err != nil {
			return err
		}
		links, err := hostfs.LibrarySymlinks(libPath)
		if err != nil {
			sylog.Warningf("engine %s: library %s: %v", engine.Name, soname, err)
			continue
		}
		for _, link := range links {
			if err := hostfs.SymlinkFile(rootfs, link, filepath.Base(libPath)); err != nil {
				return err
			}
		}
	}
	return nil
}

// mountDeviceAssets ships dev's device nodes and sysfs device paths into
// rootfs, and makes engine's whitelisted sysfs attributes under each
// syspath world read-write.
func mountDeviceAssets(rootfs string, dev *accel.Device, engine *accel.Engine) error {
	for _, devpath := range dev.DevPaths {
		if err := hostfs.MountFile(rootfs, devpath, "", true, false, true); err != nil {
			return err
		}
	}

	for _, syspath := range []string{dev.SysPathAccel, dev.SysPathEngine} {
		if syspath == "" {
			continue
		}
		if err := hostfs.MountFile(rootfs, syspath, "", false, false, true); err != nil {
			return err
		}
		if err := allowSysEntriesRW(rootfs, syspath, engine.SysEntriesRW); err != nil {
			return err
		}
	}
	return nil
}

// allowSysEntriesRW makes every one of entries, relative to syspath,
// world read-write inside rootfs, matching the original tool's per-file
// chmod of userclk_freqcmd and similar control attributes.
func allowSysEntriesRW(rootfs, syspath string, entries []string) error {
	for _, entry := range entries {
		path := filepath.Join(rootfs, syspath, entry)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := os.Chmod(path, info.Mode()|0o666); err != nil {
			return fmt.Errorf("%w: failed to chmod %s: %v", errs.ErrProvisioning, path, err)
		}
	}
	return nil
}
