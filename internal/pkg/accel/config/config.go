// Package config reads accelhook's fixed /etc/acceleration.json document
// and reduces it into the core accel package's data model. The wire
// format is a small, fixed JSON schema private to this tool, so this
// stays on encoding/json rather than reaching for a generic config
// library: there's no layering, no env/flag overrides, nothing a
// library like viper earns its keep on.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const xilinxSdxRtePath = "/opt/Xilinx/SDx/rte"

// Document is the root of /etc/acceleration.json.
type Document struct {
	Global  globalSection    `json:"global"`
	Funcs   []functionEntry  `json:"accelerationFunctions"`
	Engines []engineEntry    `json:"acceleratorEngines"`
}

type globalSection struct {
	LogLevel string `json:"loglevel"`
}

type functionEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type engineEntry struct {
	Name            string             `json:"name"`
	BitstreamLoc    string             `json:"bitstreamLocation"`
	ReconfigPhysfn  bool               `json:"partialConfigPhysfn"`
	ReconfigVirtfn  bool               `json:"partialConfigVirtfn"`
	ActivateSriov   bool               `json:"activateSriov"`
	XilinxSdxRTE    string             `json:"xilinxSdxRTE"`
	Functions       []engineFuncEntry  `json:"functions"`
}

type engineFuncEntry struct {
	Name          string `json:"name"`
	HWID          string `json:"hwID"`
	Hugepage2M    int    `json:"hugepage2M"`
	Hugepage1G    int    `json:"hugepage1G"`
	BitstreamFile string `json:"bistreamFile"`
}

// Load reads and parses path into a Document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open config file %s: %v", errs.ErrConfig, path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: config file %s: failed to parse json: %v", errs.ErrConfig, path, err)
	}
	return &doc, nil
}

// Apply reduces the document into world's catalog and registers the
// per-engine settings it carries onto the engines already present in
// world's registry (an engine not named in the document keeps whatever
// defaults its driver package registered it with). It is the config
// equivalent of accelSettingsReadConf.
func (d *Document) Apply(world *accel.World) error {
	if name, ok := sylog.LevelFromName(d.Global.LogLevel); ok {
		sylog.SetLevel(name, true)
	} else if d.Global.LogLevel != "" {
		sylog.Warningf("log level %s unknown", d.Global.LogLevel)
	}

	if len(d.Funcs) == 0 {
		return fmt.Errorf("%w: no acceleration function found", errs.ErrConfig)
	}
	for _, f := range d.Funcs {
		if _, ok := world.Catalog.Add(accel.Function{Name: f.Name, Description: f.Description}); !ok {
			return fmt.Errorf("%w: duplicate acceleration function %q", errs.ErrConfig, f.Name)
		}
	}

	if len(d.Engines) == 0 {
		return fmt.Errorf("%w: no accelerator engine found", errs.ErrConfig)
	}
	for _, e := range d.Engines {
		if err := d.applyEngine(world, e); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) applyEngine(world *accel.World, e engineEntry) error {
	var tag accel.EngineTag
	var found bool
	for _, eng := range world.Registry.All() {
		if strings.EqualFold(eng.Name, e.Name) {
			tag, found = eng.Tag, true
			break
		}
	}
	if !found {
		sylog.Warningf("config: unknown engine %s: ignore", e.Name)
		return nil
	}
	engine := world.Registry.Engine(tag)

	if e.BitstreamLoc != "" {
		engine.BitstreamPath = e.BitstreamLoc
	}
	engine.ReconfigPhysfn = e.ReconfigPhysfn
	engine.ReconfigVirtfn = e.ReconfigVirtfn
	engine.SriovMode = e.ActivateSriov

	if tag == accel.EngineXilinx {
		src := e.XilinxSdxRTE
		if src == "" {
			src = xilinxSdxRtePath
		}
		engine.Mounts = append(engine.Mounts, accel.MountPath{
			Src:    src,
			Dst:    xilinxSdxRtePath,
			RdOnly: true,
		})
	}

	if len(e.Functions) == 0 {
		sylog.Warningf("config: engine %s: no acceleration function found", e.Name)
		return nil
	}
	for _, f := range e.Functions {
		funcID := world.Catalog.NameToIndex(f.Name)
		if funcID == accel.UnknownFunc {
			sylog.Warningf("config: engine %s: unknown function %s: binding kept unresolved", e.Name, f.Name)
		}
		engine.Functions = append(engine.Functions, accel.FuncBinding{
			FuncID:        funcID,
			HWID:          f.HWID,
			Hugepage2M:    f.Hugepage2M,
			Hugepage1G:    f.Hugepage1G,
			BitstreamFile: f.BitstreamFile,
		})
	}
	return nil
}
