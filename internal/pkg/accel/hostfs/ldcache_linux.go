package hostfs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

// LdconfigCacheUpdate refreshes the dynamic linker cache of the rootfs
// the hook just populated with engine libraries, mirroring the original
// tool's system("ldconfig -r <rootfs>") call.
func LdconfigCacheUpdate(rootfs string) error {
	path, err := exec.LookPath("ldconfig")
	if err != nil {
		return fmt.Errorf("%w: ldconfig not found on PATH: %v", errs.ErrProvisioning, err)
	}
	cmd := exec.Command(path, "-r", rootfs)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: ldconfig -r %s failed: %v: %s", errs.ErrProvisioning, rootfs, err, out)
	}
	sylog.Debugf("dest root FS ld config cache updated (%s)", rootfs)
	return nil
}

// LibrarySymlinks returns every versioned symlink alongside libPath that
// eventually resolves to it (e.g. libfpga_mgmt.so -> libfpga_mgmt.so.1),
// so all of an engine's linker-visible aliases get shipped into the
// container alongside the real file.
func LibrarySymlinks(libPath string) ([]string, error) {
	bare := strings.SplitAfter(libPath, ".so")[0]
	candidates, err := filepath.Glob(bare + "*")
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: library not found: %s", errs.ErrProvisioning, libPath)
	}

	var links []string
	for _, c := range candidates {
		fi, err := os.Lstat(c)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			continue
		}
		resolved, err := filepath.EvalSymlinks(c)
		if err != nil {
			sylog.Warningf("unable to resolve symlink %s: %v", c, err)
			continue
		}
		if resolved == libPath {
			links = append(links, c)
		}
	}
	return links, nil
}
