package accel

import (
	"testing"

	"gotest.tools/v3/assert"
)

const sampleLdconfigOutput = `1234 libs found in cache
	libfpga_mgmt.so.1 (libc6,x86-64) => /usr/lib64/libfpga_mgmt.so.1
	libfpga_mgmt.so.1 (libc6,x86-64) => /usr/lib64/old/libfpga_mgmt.so.1
	libc.so.6 (libc6,x86-64) => /lib64/libc.so.6
`

func TestParseLdconfigOutput(t *testing.T) {
	cache := parseLdconfigOutput([]byte(sampleLdconfigOutput))
	assert.Equal(t, cache["libfpga_mgmt.so.1"], "/usr/lib64/libfpga_mgmt.so.1", "first match wins")
	assert.Equal(t, cache["libc.so.6"], "/lib64/libc.so.6")
	assert.Equal(t, len(cache), 2)
}

func TestResolveSonamePrefixFallback(t *testing.T) {
	cache := map[string]string{"libfpga_mgmt.so.1": "/usr/lib64/libfpga_mgmt.so.1"}

	path, ok := resolveSoname(cache, "libfpga_mgmt.so.1")
	assert.Assert(t, ok)
	assert.Equal(t, path, "/usr/lib64/libfpga_mgmt.so.1")

	path, ok = resolveSoname(cache, "libfpga_mgmt.so")
	assert.Assert(t, ok)
	assert.Equal(t, path, "/usr/lib64/libfpga_mgmt.so.1")

	_, ok = resolveSoname(cache, "libmissing.so")
	assert.Assert(t, !ok)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	intel := &Engine{Tag: EngineIntel, Name: "IntelOPAE"}
	r.Register(intel)

	assert.Equal(t, r.Engine(EngineIntel), intel)
	assert.Assert(t, r.Engine(EngineXilinx) == nil)
	assert.Equal(t, len(r.All()), 1)
	assert.Equal(t, len(r.Installed()), 0)

	intel.Installed = true
	assert.Equal(t, len(r.Installed()), 1)
}
