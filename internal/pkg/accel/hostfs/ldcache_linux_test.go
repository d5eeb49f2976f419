package hostfs

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestLibrarySymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "libfpga_mgmt.so.1.0")
	assert.NilError(t, os.WriteFile(real, []byte("x"), 0o644))

	link1 := filepath.Join(dir, "libfpga_mgmt.so")
	link2 := filepath.Join(dir, "libfpga_mgmt.so.1")
	assert.NilError(t, os.Symlink(real, link1))
	assert.NilError(t, os.Symlink(real, link2))

	links, err := LibrarySymlinks(real)
	assert.NilError(t, err)
	assert.Equal(t, len(links), 2)
}

func TestLibrarySymlinksMissing(t *testing.T) {
	_, err := LibrarySymlinks(filepath.Join(t.TempDir(), "nope.so"))
	assert.ErrorContains(t, err, "library not found")
}
