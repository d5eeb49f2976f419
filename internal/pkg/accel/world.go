package accel

// World bundles the function catalog, engine registry and enumerated
// device catalog produced by one configuration load and one probe/
// enumerate pass. Passing a *World explicitly, instead of reaching for
// package-level state, keeps enumeration and selection safe to exercise
// concurrently in tests.
type World struct {
	Catalog  *Catalog
	Registry *Registry
	Devices  *DeviceCatalog
}

// NewWorld returns an empty World ready to be filled by a config load
// followed by Enumerate.
func NewWorld() *World {
	return &World{
		Catalog:  NewCatalog(0),
		Registry: NewRegistry(),
		Devices:  NewDeviceCatalog(0),
	}
}

// Enumerate asks every installed engine in w.Registry to append its
// devices to w.Devices. An engine that is not installed, or carries no
// Ops (a stub registered for a vendor whose library resolution failed),
// is silently skipped: per the original tool's contract, an unavailable
// engine simply contributes zero devices rather than failing the run.
func (w *World) Enumerate() error {
	for _, e := range w.Registry.All() {
		if !e.Installed || e.Ops == nil {
			continue
		}
		if err := e.Ops.Enumerate(w.Devices); err != nil {
			return err
		}
	}
	return nil
}

// NewSelector returns a Selector bound to this world's registry and
// catalog.
func (w *World) NewSelector() *Selector {
	return NewSelector(w.Registry, w.Catalog)
}
