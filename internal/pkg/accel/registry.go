package accel

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

// Registry is the fixed two-slot table of statically known accelerator
// engines, indexed by EngineTag.
type Registry struct {
	engines [engineMax]*Engine
}

// NewRegistry returns a registry with no engines registered.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs e at its own tag's slot, overwriting whatever was
// there before.
func (r *Registry) Register(e *Engine) {
	r.engines[e.Tag] = e
}

// Engine returns the engine registered under tag, or nil.
func (r *Registry) Engine(tag EngineTag) *Engine {
	if tag < 0 || tag >= engineMax {
		return nil
	}
	return r.engines[tag]
}

// All returns every registered, non-nil engine.
func (r *Registry) All() []*Engine {
	out := make([]*Engine, 0, engineMax)
	for _, e := range r.engines {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Installed returns the subset of registered engines whose libraries all
// resolved during ProbeInstalled.
func (r *Registry) Installed() []*Engine {
	out := make([]*Engine, 0, engineMax)
	for _, e := range r.engines {
		if e != nil && e.Installed {
			out = append(out, e)
		}
	}
	return out
}

var ldconfigEntry = regexp.MustCompile(`(?m)^\s*(\S+)\s*\(.*\)\s*=>\s*(\S+)\s*$`)

// ProbeInstalled resolves each registered engine's required shared
// libraries against the system linker cache, mirroring the original
// tool's findInstalledEngines: it shells out to `ldconfig -p` once, then
// marks an engine Installed only if every one of its LibNames resolved,
// filling LibPaths with soname -> absolute path. An engine with no
// LibNames is always considered installed (it needs nothing but sysfs).
func (r *Registry) ProbeInstalled() error {
	cache, err := ldconfigCache()
	if err != nil {
		return errors.Wrap(err, "probing installed accelerator engines")
	}

	for _, e := range r.engines {
		if e == nil {
			continue
		}
		e.Installed = true
		if len(e.LibNames) == 0 {
			continue
		}
		if e.LibPaths == nil {
			e.LibPaths = make(map[string]string, len(e.LibNames))
		}
		for _, soname := range e.LibNames {
			path, ok := resolveSoname(cache, soname)
			if !ok {
				sylog.Debugf("engine %s: library %s not found in ld cache", e.Name, soname)
				e.Installed = false
				continue
			}
			e.LibPaths[soname] = path
		}
	}
	return nil
}

// resolveSoname looks soname up directly, then falls back to a prefix
// match (e.g. "libfpga_mgmt.so" matching a cached "libfpga_mgmt.so.1").
func resolveSoname(cache map[string]string, soname string) (string, bool) {
	if path, ok := cache[soname]; ok {
		return path, true
	}
	for name, path := range cache {
		if strings.HasPrefix(name, soname) {
			return path, true
		}
	}
	return "", false
}

// ldconfigCache runs `ldconfig -p` and parses its output into a map of
// library soname to resolved absolute path, keeping only the first
// (highest priority) entry for a given soname.
func ldconfigCache() (map[string]string, error) {
	path, err := exec.LookPath("ldconfig")
	if err != nil {
		return nil, fmt.Errorf("%w: ldconfig not found on PATH: %v", errs.ErrEngineUnavailable, err)
	}
	out, err := exec.Command(path, "-p").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ldconfig -p failed: %v", errs.ErrEngineUnavailable, err)
	}
	return parseLdconfigOutput(out), nil
}

// parseLdconfigOutput parses `ldconfig -p` output, e.g.:
//
//	libfpga_mgmt.so.1 (libc6,x86-64) => /usr/lib64/libfpga_mgmt.so.1
//
// keeping only the first, highest priority, entry for a given soname.
func parseLdconfigOutput(out []byte) map[string]string {
	cache := make(map[string]string)
	for _, m := range ldconfigEntry.FindAllStringSubmatch(string(out), -1) {
		name := strings.TrimSpace(m[1])
		libPath := strings.TrimSpace(m[2])
		if _, ok := cache[name]; !ok {
			cache[name] = libPath
		}
	}
	return cache
}
