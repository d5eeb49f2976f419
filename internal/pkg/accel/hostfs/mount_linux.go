// Package hostfs implements the bind-mount and inode-creation primitives
// accelhook uses to ship host devices, sysfs paths and engine libraries
// into a running container's mount namespace.
package hostfs

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

// MountFile bind mounts srcpath into rootfs at dstpath (or at srcpath's
// own path within rootfs, if dstpath is empty), creating the destination
// node first. device controls whether the destination may carry device
// nodes (MS_NODEV is added when false); rdonly remounts the mount
// read-only; noexec additionally adds MS_NOEXEC|MS_NOSUID, matching the
// original tool's contract for device node and sysfs bind mounts.
func MountFile(rootfs, srcpath, dstpath string, device, rdonly, noexec bool) error {
	info, err := os.Stat(srcpath)
	if err != nil {
		return fmt.Errorf("%w: mount source %s not found: %v", errs.ErrProvisioning, srcpath, err)
	}

	if dstpath == "" {
		dstpath = srcpath
	}
	dstFull := filepath.Join(rootfs, dstpath)

	if err := createDest(dstFull, info.Mode()); err != nil {
		return fmt.Errorf("%w: mount dest %s: %v", errs.ErrProvisioning, dstFull, err)
	}

	if err := unix.Mount(srcpath, dstFull, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("%w: bind mount %s to %s: %v", errs.ErrProvisioning, srcpath, dstFull, err)
	}

	options := uintptr(unix.MS_BIND | unix.MS_REMOUNT)
	if !device {
		options |= unix.MS_NODEV
	}
	if rdonly {
		options |= unix.MS_RDONLY
	}
	if noexec {
		options |= unix.MS_NOEXEC | unix.MS_NOSUID
	}
	if err := unix.Mount("", dstFull, "", options, ""); err != nil {
		return fmt.Errorf("%w: remount %s (opt %x): %v", errs.ErrProvisioning, dstFull, options, err)
	}

	sylog.Debugf("%s mounted to %s (opt %x)", srcpath, dstFull, options)
	return nil
}

// SymlinkFile creates a symlink inside rootfs at aliaspath pointing at
// target, replacing the original tool's file_create(..., S_IFLNK) call
// for shipping a versioned library alias (e.g. libfpga_mgmt.so ->
// libfpga_mgmt.so.1) without duplicating the library itself as a second
// bind mount. target is kept relative (a bare basename) so it resolves
// against the real file once both land in the same rootfs directory.
func SymlinkFile(rootfs, aliaspath, target string) error {
	dstFull := filepath.Join(rootfs, aliaspath)

	return WithFsIDs(0, 0, func() error {
		if err := makeAncestors(filepath.Dir(dstFull)); err != nil {
			return fmt.Errorf("%w: symlink dest %s: %v", errs.ErrProvisioning, dstFull, err)
		}
		if err := os.Remove(dstFull); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: symlink dest %s: %v", errs.ErrProvisioning, dstFull, err)
		}
		if err := os.Symlink(target, dstFull); err != nil {
			return fmt.Errorf("%w: symlink %s -> %s: %v", errs.ErrProvisioning, dstFull, target, err)
		}
		sylog.Debugf("%s symlinked to %s", dstFull, target)
		return nil
	})
}

// createDest creates the destination node for a bind mount: a regular
// file unless the source was a directory, owned by uid 0/gid 0 and
// created under the process's own fsuid/fsgid bracket so the inode is
// visible to a user-namespaced container.
func createDest(path string, mode os.FileMode) error {
	return WithFsIDs(0, 0, func() error {
		if err := makeAncestors(filepath.Dir(path)); err != nil {
			return err
		}
		if mode.IsDir() {
			if err := os.Mkdir(path, 0o755); err != nil && !os.IsExist(err) {
				return err
			}
			return nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return nil
			}
			return err
		}
		return f.Close()
	})
}

// makeAncestors creates every missing directory in path, mirroring the
// original tool's make_ancestors recursion.
func makeAncestors(path string) error {
	if path == "" || path == "." || path == string(filepath.Separator) {
		return nil
	}
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	if !os.IsNotExist(err) {
		return err
	}
	if err := makeAncestors(filepath.Dir(path)); err != nil {
		return err
	}
	return os.Mkdir(path, 0o755)
}
