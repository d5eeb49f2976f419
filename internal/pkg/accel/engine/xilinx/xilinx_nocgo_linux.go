//go:build linux && !cgo
// +build linux,!cgo

package xilinx

import (
	"fmt"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

// enumerateViaLibfpga reports zero Xilinx devices on a cgo-disabled
// build: libfpga_mgmt.so can only be reached through dlopen, which
// requires cgo, so this build treats the engine as present but never
// finding hardware, the same outcome the cgo build gives on a host
// without the vendor library installed.
func enumerateViaLibfpga(engine *accel.Engine, catalog *accel.DeviceCatalog) error {
	sylog.Warningf("%s: built without cgo, cannot probe %s", logtag, libMgmtSoname)
	return nil
}

func loadBitstreamViaLibfpga(slotID int) (string, error) {
	return "", fmt.Errorf("%w: built without cgo, cannot verify reconfigured image", errs.ErrBitstream)
}

const libMgmtSoname = "libfpga_mgmt.so"
