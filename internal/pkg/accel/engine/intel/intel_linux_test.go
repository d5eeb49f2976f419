package intel

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/accelhook/accelhook/internal/pkg/accel"
)

func TestBusdevfnFromSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "0000:3b:00.1")
	assert.NilError(t, os.Mkdir(target, 0o755))

	link := filepath.Join(dir, "device")
	assert.NilError(t, os.Symlink(target, link))

	bdf, err := busdevfnFromSymlink(link)
	assert.NilError(t, err)
	assert.Equal(t, bdf, accel.PciBDF{Bus: 0x3b, Device: 0x00, Function: 0x1})
}

func TestBusdevfnFromSymlinkMalformed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "not-a-bdf")
	assert.NilError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "device")
	assert.NilError(t, os.Symlink(target, link))

	_, err := busdevfnFromSymlink(link)
	assert.ErrorContains(t, err, "failed to extract")
}

func TestReadAfuIDCanonicalizesUUID(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "afu_id"), []byte("d8424dc4a4a3c413f89e433683a9040b\n"), 0o644))

	dev := &accel.Device{BDF: accel.PciBDF{Bus: 1}}
	assert.NilError(t, readAfuID(dev, dir))
	assert.Equal(t, dev.FuncHwid, "d8424dc4-a4a3-c413-f89e-433683a9040b")
}

func TestReadAfuIDRejectsWrongLength(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "afu_id"), []byte("tooshort\n"), 0o644))

	dev := &accel.Device{BDF: accel.PciBDF{Bus: 1}}
	err := readAfuID(dev, dir)
	assert.ErrorContains(t, err, "malformed AFU id")
}

func TestNewRegistersExpectedDefaults(t *testing.T) {
	e := New()
	assert.Equal(t, e.Tag, accel.EngineIntel)
	assert.Assert(t, e.ReconfigPhysfn)
	assert.Assert(t, !e.ReconfigVirtfn)
	assert.Equal(t, len(e.LibNames), 2)
	assert.Assert(t, e.Ops != nil)
}
