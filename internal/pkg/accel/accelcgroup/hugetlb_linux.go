package accelcgroup

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const (
	hugetlb2MLimitFile = "hugetlb.2MB.limit_in_bytes"
	hugetlb1GLimitFile = "hugetlb.1GB.limit_in_bytes"
)

// SetHugetlbLimits raises pid's hugetlb cgroup limits to cover
// nbHugepage2M 2MB pages and nbHugepage1G 1GB pages, writing the exact
// "<n>M"/"<n>G" string forms the kernel's hugetlb cgroup controller
// accepts, as the original tool's limitHugetlb does.
func SetHugetlbLimits(pid, nbHugepage2M, nbHugepage1G int) error {
	cgpath, err := Path(pid, "hugetlb")
	if err != nil {
		return err
	}

	hugetlbRoot := "/sys/fs/cgroup/hugetlb"
	if err := unix.Mount("", hugetlbRoot, "cgroup", unix.MS_BIND|unix.MS_REMOUNT, ""); err != nil {
		return fmt.Errorf("%w: failed to remount sysfs cgroup hugetlb read/write (path %s): %v", errs.ErrProvisioning, hugetlbRoot, err)
	}
	defer func() {
		flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if err := unix.Mount("", hugetlbRoot, "cgroup", flags, ""); err != nil {
			sylog.Warningf("failed to remount hugetlb cgroup read-only: %v", err)
		}
	}()

	if err := writeLimit(cgpath+hugetlb2MLimitFile, fmt.Sprintf("%dM", nbHugepage2M*2)); err != nil {
		return err
	}
	if err := writeLimit(cgpath+hugetlb1GLimitFile, fmt.Sprintf("%dG", nbHugepage1G)); err != nil {
		return err
	}
	return nil
}

func writeLimit(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", errs.ErrProvisioning, path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return fmt.Errorf("%w: failed to write %s to %s: %v", errs.ErrProvisioning, value, path, err)
	}
	return nil
}

// SetMemlockLimit raises pid's RLIMIT_MEMLOCK soft and hard limits to
// memBytes, mirroring the original tool's rlimitConfig(pid,
// RLIMIT_MEMLOCK, ...). A failure here is logged but not fatal, matching
// the original's "Dest FS set ulimits failed" warning-only behaviour --
// unlike the hugetlb cgroup write, which is mandatory.
func SetMemlockLimit(pid int, memBytes uint64) error {
	lim := unix.Rlimit{Cur: memBytes, Max: memBytes}
	if err := unix.Prlimit(pid, unix.RLIMIT_MEMLOCK, &lim, nil); err != nil {
		sylog.Warningf("dest FS set ulimits RLIMIT_MEMLOCK failed: %v", err)
		return fmt.Errorf("%w: prlimit RLIMIT_MEMLOCK: %v", errs.ErrProvisioning, err)
	}
	sylog.Debugf("dest FS ulimits RLIMIT_MEMLOCK set to %d, %d", memBytes, memBytes)
	return nil
}
