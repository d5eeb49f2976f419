// Package accelcgroup whitelists accelerator device nodes in a
// container's devices cgroup and raises its hugetlb limits, mirroring
// the original tool's allowDevices and limitHugetlb.
package accelcgroup

import (
	"fmt"
	"path/filepath"

	"github.com/opencontainers/runc/libcontainer/cgroups"
	"golang.org/x/sys/unix"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/accel/sysfs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const sysfsCgroupPath = "/sys/fs/cgroup"

// Path returns the cgroup v1 path of pid for the named controller (e.g.
// "devices" or "hugetlb"), mirroring the original tool's
// findCgroupPath.
func Path(pid int, controller string) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("%w: must provide a valid pid", errs.ErrProvisioning)
	}
	cgFile := fmt.Sprintf("/proc/%d/cgroup", pid)
	paths, err := cgroups.ParseCgroupFile(cgFile)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read %s: %v", errs.ErrProvisioning, cgFile, err)
	}
	cgpath, ok := paths[controller]
	if !ok {
		return "", fmt.Errorf("%w: failed to find cgroup %s for pid %d", errs.ErrProvisioning, controller, pid)
	}
	full := filepath.Join(sysfsCgroupPath, controller, cgpath) + "/"
	sylog.Debugf("cgroup %s sysfs path %s", controller, full)
	return full, nil
}

// remountDevices toggles the bind-mounted devices controller between
// read-write (needed to write devices.allow) and its normal read-only
// state.
func remountDevices(rootfs string, rw bool) error {
	path := filepath.Join(rootfs, sysfsCgroupPath, "devices")
	flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT)
	if !rw {
		flags |= unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC
	}
	if err := unix.Mount("", path, "cgroup", flags, ""); err != nil {
		return fmt.Errorf("%w: failed to remount sysfs cgroup devices (path %s): %v", errs.ErrProvisioning, path, err)
	}
	return nil
}

// AllowDevice whitelists the device node at devpath in the devices
// cgroup of the container rooted at rootfs, one devices.allow write per
// node exactly as the original tool does (no batching).
func AllowDevice(rootfs, devpath string) error {
	var stat unix.Stat_t
	if err := unix.Stat(devpath, &stat); err != nil {
		return fmt.Errorf("%w: device node %s: stat failed: %v", errs.ErrProvisioning, devpath, err)
	}

	major := int64(unix.Major(uint64(stat.Rdev)))
	minor := int64(unix.Minor(uint64(stat.Rdev)))

	allowPath := filepath.Join(rootfs, sysfsCgroupPath, "devices", "devices.allow")
	rule := fmt.Sprintf("c %d:%d rwm", major, minor)

	if err := sysfs.AppendString(allowPath, rule); err != nil {
		return fmt.Errorf("%w: failed to write [%s] to devices.allow: %v", errs.ErrProvisioning, rule, err)
	}

	sylog.Infof("device %s: device node %d:%d whitelisted", devpath, major, minor)
	return nil
}

// WithDevicesRW remounts the devices controller of rootfs read-write,
// runs fn, then always remounts it back read-only -- even if fn failed.
func WithDevicesRW(rootfs string, fn func() error) error {
	if err := remountDevices(rootfs, true); err != nil {
		return err
	}
	sylog.Debugf("sysfs cgroup devices remounted read/write")

	err := fn()

	if rerr := remountDevices(rootfs, false); rerr != nil {
		sylog.Warningf("failed to remount devices cgroup read-only: %v", rerr)
	} else {
		sylog.Debugf("sysfs cgroup devices remounted read only")
	}
	return err
}
