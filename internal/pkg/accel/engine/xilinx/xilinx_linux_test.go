package xilinx

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/accelhook/accelhook/internal/pkg/accel"
)

func TestSysfsDevPath(t *testing.T) {
	assert.Equal(t, sysfsDevPath(0x3b, 0, 1), "/sys/bus/pci/devices/0000:3b:00.1")
}

func TestDevNodesForSlotNoMatches(t *testing.T) {
	assert.Equal(t, len(devNodesForSlot(999)), 0)
}

func TestNewRegistersExpectedDefaults(t *testing.T) {
	e := New()
	assert.Equal(t, e.Tag, accel.EngineXilinx)
	assert.Assert(t, e.ReconfigPhysfn)
	assert.Assert(t, !e.ReconfigVirtfn)
	assert.Equal(t, len(e.LibNames), 0)
	assert.Equal(t, len(e.SysEntriesRW), 2)
	assert.Assert(t, e.Ops != nil)
}
