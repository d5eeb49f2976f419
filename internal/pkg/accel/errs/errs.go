// Package errs defines the error taxonomy accelhook's components raise.
// Errors returned by internal/pkg/accel and its subpackages wrap one of
// these sentinels, except those of the low-level accel/sysfs helpers,
// which their callers wrap, so a caller can classify a failure without
// inspecting error strings.
package errs

import "errors"

var (
	// ErrConfig covers a missing/unparseable configuration document, or an
	// empty function or engine list within it.
	ErrConfig = errors.New("configuration error")

	// ErrEngineUnavailable marks a failure to read the linker cache
	// (ldconfig missing or failing) while Registry.ProbeInstalled probes
	// which engines are installed. An engine whose required libraries
	// simply do not resolve is not an error: it is left uninstalled and
	// contributes no devices to the catalog.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrEnumeration covers a sysfs or vendor-library lookup failure
	// mid-walk during device enumeration.
	ErrEnumeration = errors.New("enumeration error")

	// ErrSelection covers an unknown device/function token, or a device
	// that needs a function it cannot load.
	ErrSelection = errors.New("selection error")

	// ErrBitstream covers a loader binary non-zero exit or a post-load
	// hardware id mismatch.
	ErrBitstream = errors.New("bitstream load error")

	// ErrProvisioning covers any mount, chmod, cgroup write, namespace
	// switch, or rlimit failure.
	ErrProvisioning = errors.New("provisioning error")
)

// Is reports whether err ultimately wraps target, delegating to the
// standard library so callers can write errs.Is(err, errs.ErrSelection).
func Is(err, target error) bool {
	return errors.Is(err, target)
}
