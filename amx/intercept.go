package amx

import "errors"

var (
	// ErrAlreadyInstalled is returned when a second intercept is placed
	// over a dispatch entry that already has one.
	ErrAlreadyInstalled = errors.New("amx: dispatch entry already intercepted")

	// ErrNotInstalled is returned by operations on an uninstalled intercept.
	ErrNotInstalled = errors.New("amx: intercept is not installed")

	// ErrDispatchDiverted is returned when Uninstall finds the dispatch
	// entry no longer pointing at this intercept. The original path cannot
	// be restored safely; callers must treat this as fatal.
	ErrDispatchDiverted = errors.New("amx: dispatch entry was re-pointed behind the intercept's back")
)

// Intercept is a two-state detour over a machine's native-dispatch entry.
// While installed, every native call reaches hook first; the preserved
// original path stays reachable through Trampoline. All pointer swapping
// lives here so callers never touch the dispatch entry directly.
type Intercept struct {
	machine    *AMX
	hook       DispatchFunc
	trampoline DispatchFunc
	installed  bool
}

// InstallIntercept swaps the machine's dispatch entry for hook and returns
// the lifecycle object holding the original trampoline.
func InstallIntercept(m *AMX, hook DispatchFunc) (*Intercept, error) {
	if m.intercept != nil {
		return nil, ErrAlreadyInstalled
	}
	ic := &Intercept{
		machine:    m,
		hook:       hook,
		trampoline: m.dispatch,
		installed:  true,
	}
	m.dispatch = func(m *AMX, n *Native, params []Cell) (Cell, error) {
		// A caller may have cached the swapped entry before Uninstall ran;
		// a dead intercept must forward rather than reach the hook.
		if !ic.installed {
			return ic.trampoline(m, n, params)
		}
		return ic.hook(m, n, params)
	}
	m.intercept = ic
	return ic, nil
}

// Installed reports whether the detour is currently in place.
func (ic *Intercept) Installed() bool {
	return ic.installed
}

// Trampoline invokes the preserved original dispatch path.
func (ic *Intercept) Trampoline(m *AMX, n *Native, params []Cell) (Cell, error) {
	if !ic.installed {
		return 0, ErrNotInstalled
	}
	return ic.trampoline(m, n, params)
}

// Uninstall restores the original dispatch entry. After it returns, no call
// can reach the hook again, even through a pointer cached before the swap:
// the installed flag is cleared first and the wrapper refuses dead hooks.
func (ic *Intercept) Uninstall() error {
	if !ic.installed {
		return ErrNotInstalled
	}
	if ic.machine.intercept != ic {
		return ErrDispatchDiverted
	}
	ic.installed = false
	ic.machine.dispatch = ic.trampoline
	ic.machine.intercept = nil
	return nil
}
