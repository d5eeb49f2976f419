package accel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/accelhook/accelhook/internal/pkg/accel/errs"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

// allDevicesToken is the literal that selects every enumerated device,
// mirroring the original tool's "all" keyword for --devices.
const allDevicesToken = "all"

// Selector turns the CLI's --devices and --functions token lists into a
// concrete attached set, and drives the reconfiguration of any attached
// device that is not already running its requested function.
type Selector struct {
	Registry *Registry
	Catalog  *Catalog
}

// NewSelector bundles the registry and function catalog a selection run
// needs.
func NewSelector(reg *Registry, cat *Catalog) *Selector {
	return &Selector{Registry: reg, Catalog: cat}
}

// ParseTokens splits a comma-separated CLI argument into trimmed,
// non-empty tokens.
func ParseTokens(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	parts := strings.Split(spec, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SelectDevices resolves the --devices token list against the full
// catalog. A single "all" token selects every device; otherwise each
// token must match a device's BDF string ("bb:dd.f") or its bare slot
// id (decimal). Order of the returned slice follows the token list, not
// enumeration order, so a later --functions entry lines up positionally
// with the device the user named.
func (s *Selector) SelectDevices(catalog *DeviceCatalog, tokens []string) ([]*Device, error) {
	if len(tokens) == 1 && strings.EqualFold(tokens[0], allDevicesToken) {
		return catalog.All(), nil
	}

	all := catalog.All()
	out := make([]*Device, 0, len(tokens))
	for _, tok := range tokens {
		dev := matchDevice(all, tok)
		if dev == nil {
			return nil, fmt.Errorf("%w: no enumerated accelerator matches device token %q", errs.ErrSelection, tok)
		}
		out = append(out, dev)
	}
	return out, nil
}

func matchDevice(devices []*Device, tok string) *Device {
	for _, d := range devices {
		if strings.EqualFold(d.BDF.String(), tok) {
			return d
		}
	}
	if slot, err := strconv.Atoi(tok); err == nil {
		for _, d := range devices {
			if d.SlotID == slot {
				return d
			}
		}
	}
	return nil
}

// ResolveFunctions pairs each device in attached with a function name
// from tokens, replicating the last token to fill out any devices beyond
// the end of the list -- the original tool's behaviour when fewer
// --functions entries are given than --devices entries. An empty token
// list is a warning, not an error: each device is reported back under
// the name of the function it already runs, so Reconcile finds it already
// loaded, or as "" when that function is not in the catalog, which
// Reconcile leaves alone.
func (s *Selector) ResolveFunctions(attached []*Device, tokens []string) ([]string, error) {
	out := make([]string, len(attached))
	if len(tokens) == 0 {
		sylog.Warningf("no functions specified: leaving %d attached device(s) at their current function", len(attached))
		for i, dev := range attached {
			out[i] = s.Catalog.IndexToName(dev.FuncID)
		}
		return out, nil
	}
	for i := range attached {
		if i < len(tokens) {
			out[i] = tokens[i]
		} else {
			out[i] = tokens[len(tokens)-1]
		}
	}
	return out, nil
}

// Reconcile ensures every device in attached is running the function
// named at the same index in funcNames, reprogramming it through its
// engine's Ops when the currently loaded hardware id does not already
// match. It is fatal if a device needs reprogramming but its engine does
// not support reconfiguration for that device's PCIe function kind, or
// is not installed.
func (s *Selector) Reconcile(attached []*Device, funcNames []string) error {
	if len(attached) != len(funcNames) {
		return fmt.Errorf("%w: %d devices but %d resolved function names", errs.ErrSelection, len(attached), len(funcNames))
	}

	for i, dev := range attached {
		if funcNames[i] == "" {
			sylog.Debugf("device %s: no function requested, preserving current state", dev.BDF)
			continue
		}

		funcID := s.Catalog.NameToIndex(funcNames[i])
		if funcID == UnknownFunc {
			return fmt.Errorf("%w: unknown function %q", errs.ErrSelection, funcNames[i])
		}

		engine := s.Registry.Engine(dev.Engine)
		if engine == nil || !engine.Installed {
			return fmt.Errorf("%w: device %s belongs to an engine that is not installed", errs.ErrSelection, dev.BDF)
		}

		binding := engine.FuncConf(funcID)
		if binding == nil {
			return fmt.Errorf("%w: engine %s has no binding for function %q", errs.ErrSelection, engine.Name, funcNames[i])
		}

		if dev.FuncID == funcID && equalFold(dev.FuncHwid, binding.HWID) {
			sylog.Debugf("device %s already running function %q", dev.BDF, funcNames[i])
			continue
		}

		if !engine.ReconfigSupport(dev.PciFnKind) {
			return fmt.Errorf("%w: engine %s cannot reconfigure a %v function", errs.ErrSelection, engine.Name, dev.PciFnKind)
		}

		sylog.Infof("reconfiguring device %s to function %q", dev.BDF, funcNames[i])
		if err := engine.Ops.LoadBitstream(dev, *binding); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrBitstream, err)
		}
		dev.FuncID = funcID
		dev.FuncHwid = binding.HWID
	}
	return nil
}
