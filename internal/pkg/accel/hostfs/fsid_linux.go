package hostfs

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// WithFsIDs runs fn with the process's filesystem uid/gid temporarily
// switched to uid/gid, restoring the caller's own ids afterwards. Mount
// destination inodes created under a user namespace must be owned by a
// uid/gid the VFS already knows about, which is why file creation below
// brackets itself in this rather than a plain chown after the fact.
func WithFsIDs(uid, gid int, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	oldUID := unix.Setfsuid(uid)
	oldGID := unix.Setfsgid(gid)
	defer func() {
		unix.Setfsuid(oldUID)
		unix.Setfsgid(oldGID)
	}()

	return fn()
}
