package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/accelhook/accelhook/internal/pkg/accel"
)

const sampleConfig = `{
	"global": { "loglevel": "debug" },
	"accelerationFunctions": [
		{ "name": "crypto", "description": "bulk encryption" },
		{ "name": "compress", "description": "data compression" }
	],
	"acceleratorEngines": [
		{
			"name": "IntelOPAE",
			"bitstreamLocation": "/usr/lib/bitstream/intel",
			"partialConfigPhysfn": true,
			"partialConfigVirtfn": false,
			"activateSriov": false,
			"functions": [
				{ "name": "crypto", "hwID": "D8424DC4-A4A3-C413-F89E-433683A9040B", "hugepage2M": 4, "hugepage1G": 0, "bistreamFile": "crypto.gbs" }
			]
		},
		{
			"name": "XilinxAWS",
			"partialConfigPhysfn": true,
			"xilinxSdxRTE": "",
			"functions": [
				{ "name": "compress", "hwID": "0123456789abcdef0123456789abcdef", "hugepage2M": 0, "hugepage1G": 1, "bistreamFile": "compress.awsxclbin" }
			]
		}
	]
}`

func writeTempConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acceleration.json")
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newTestWorld() *accel.World {
	w := accel.NewWorld()
	w.Registry.Register(&accel.Engine{Tag: accel.EngineIntel, Name: "IntelOPAE", Installed: true})
	w.Registry.Register(&accel.Engine{Tag: accel.EngineXilinx, Name: "XilinxAWS", Installed: true})
	return w
}

func TestLoadAndApply(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	doc, err := Load(path)
	assert.NilError(t, err)

	w := newTestWorld()
	assert.NilError(t, doc.Apply(w))

	assert.Equal(t, w.Catalog.Len(), 2)
	assert.Equal(t, w.Catalog.NameToIndex("crypto"), 0)
	assert.Equal(t, w.Catalog.NameToIndex("compress"), 1)

	intel := w.Registry.Engine(accel.EngineIntel)
	assert.Assert(t, intel.ReconfigPhysfn)
	assert.Assert(t, !intel.ReconfigVirtfn)
	assert.Equal(t, intel.BitstreamPath, "/usr/lib/bitstream/intel")
	assert.Equal(t, len(intel.Functions), 1)
	assert.Equal(t, intel.Functions[0].HWID, "D8424DC4-A4A3-C413-F89E-433683A9040B")

	xilinx := w.Registry.Engine(accel.EngineXilinx)
	assert.Equal(t, len(xilinx.Mounts), 1)
	assert.Equal(t, xilinx.Mounts[0].Src, xilinxSdxRtePath, "empty xilinxSdxRTE must default to the well-known path")
	assert.Equal(t, xilinx.Mounts[0].Dst, xilinxSdxRtePath)
	assert.Assert(t, xilinx.Mounts[0].RdOnly)
}

func TestApplyRejectsEmptyFunctionList(t *testing.T) {
	doc := &Document{Engines: []engineEntry{{Name: "IntelOPAE"}}}
	err := doc.Apply(newTestWorld())
	assert.ErrorContains(t, err, "no acceleration function found")
}

func TestApplyRejectsEmptyEngineList(t *testing.T) {
	doc := &Document{Funcs: []functionEntry{{Name: "crypto"}}}
	err := doc.Apply(newTestWorld())
	assert.ErrorContains(t, err, "no accelerator engine found")
}

func TestApplyIgnoresUnknownEngine(t *testing.T) {
	doc := &Document{
		Funcs:   []functionEntry{{Name: "crypto"}},
		Engines: []engineEntry{{Name: "NoSuchEngine", Functions: []engineFuncEntry{{Name: "crypto"}}}},
	}
	err := doc.Apply(newTestWorld())
	assert.NilError(t, err)
}

func TestApplyRejectsDuplicateFunctionNames(t *testing.T) {
	doc := &Document{
		Funcs: []functionEntry{{Name: "crypto"}, {Name: "CRYPTO"}},
		Engines: []engineEntry{
			{Name: "IntelOPAE", Functions: []engineFuncEntry{{Name: "crypto"}}},
		},
	}
	err := doc.Apply(newTestWorld())
	assert.ErrorContains(t, err, "duplicate acceleration function")
}
