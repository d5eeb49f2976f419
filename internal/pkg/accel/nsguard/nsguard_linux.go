// Package nsguard switches the calling process into another process's
// mount namespace for the duration of container provisioning, and back
// out again afterwards.
package nsguard

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

// Handle is the caller's own mount namespace, held open so Leave can
// restore it.
type Handle struct {
	self *os.File
}

// Enter switches the calling OS thread into pid's mount namespace,
// returning a Handle that Leave uses to switch back. The caller must
// keep the OS thread locked (runtime.LockOSThread) for as long as the
// Handle is live: namespaces are per-thread, and Go may otherwise
// reschedule this goroutine onto a thread that never entered pid's
// namespace.
func Enter(pid int) (*Handle, error) {
	self, err := os.OpenFile("/proc/self/ns/mnt", os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open own mount namespace: %v", errs.ErrProvisioning, err)
	}
	unix.CloseOnExec(int(self.Fd()))

	target, err := os.OpenFile(fmt.Sprintf("/proc/%d/ns/mnt", pid), os.O_RDONLY, 0)
	if err != nil {
		self.Close()
		return nil, fmt.Errorf("%w: failed to open mount namespace of pid %d (wrong pid?): %v", errs.ErrProvisioning, pid, err)
	}
	defer target.Close()
	unix.CloseOnExec(int(target.Fd()))

	if err := unix.Setns(int(target.Fd()), unix.CLONE_NEWNS); err != nil {
		self.Close()
		return nil, fmt.Errorf("%w: failed to set mount namespace of pid %d: %v", errs.ErrProvisioning, pid, err)
	}

	sylog.Infof("switched to mount namespace of pid %d", pid)
	return &Handle{self: self}, nil
}

// Leave restores the namespace captured by Enter.
func (h *Handle) Leave() error {
	if h == nil || h.self == nil {
		return nil
	}
	defer h.self.Close()

	if err := unix.Setns(int(h.self.Fd()), unix.CLONE_NEWNS); err != nil {
		return fmt.Errorf("%w: failed to set back default mount namespace: %v", errs.ErrProvisioning, err)
	}
	sylog.Infof("switched back to default mount namespace")
	return nil
}
