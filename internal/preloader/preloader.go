// Package preloader defines the hook interface every post-receipt
// processing step implements (C4/C5 are both hooks) and the manager that
// resolves a configured hook list to live instances (C6).
package preloader

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/chainindex/txprocessor/internal/ethtypes"
)

// Hook is the interface every preloader implements. Init is optional: a
// hook with nothing to set up simply does not implement Initializer.
type Hook interface {
	Name() string
	ProcessReceipt(ctx context.Context, txHash common.Hash, receipt *ethtypes.Receipt, namespace string) error
}

// Initializer is implemented by hooks that need a startup step; its absence
// is non-fatal (spec.md §4.7: "call init() on every hook that defines one;
// missing init is non-fatal").
type Initializer interface {
	Init(ctx context.Context) error
}

// Factory builds a Hook from a task_type/module/class_name entry in
// preloaders.json. The string argument is the entry's ClassName, letting
// one registered factory serve differently-configured instances if ever
// needed.
type Factory func(className string) (Hook, error)

// Manager is the C6 hook manager: a static, name-keyed registry resolving
// an ordered preloader list to live Hook instances.
type Manager struct {
	registry map[string]Factory
	hooks    []Hook
}

// NewManager builds a Manager from a registry keyed by the preloaders.json
// "module" field. Dynamic loading (import-by-string) is explicitly not a
// requirement (spec.md §4.6); the registry is supplied by the caller at
// wiring time.
func NewManager(registry map[string]Factory) *Manager {
	return &Manager{registry: registry}
}

// Load resolves entries in order, failing the whole load if any one entry's
// module isn't registered or its factory errors.
func (m *Manager) Load(entries []Entry) error {
	hooks := make([]Hook, 0, len(entries))
	for _, e := range entries {
		factory, ok := m.registry[e.Module]
		if !ok {
			return &UnknownModuleError{Module: e.Module}
		}
		hook, err := factory(e.ClassName)
		if err != nil {
			return &LoadError{Module: e.Module, Cause: err}
		}
		hooks = append(hooks, hook)
	}
	m.hooks = hooks
	return nil
}

// Entry mirrors config.PreloaderDef without importing internal/config,
// keeping this package usable by anything that can produce a
// module/class-name pair.
type Entry struct {
	Module    string
	ClassName string
}

// Init calls Init on every hook that implements Initializer, in load order.
// The first error aborts startup, matching the fatal "load failure" rule
// for C6 as a whole.
func (m *Manager) Init(ctx context.Context) error {
	for _, h := range m.hooks {
		if init, ok := h.(Initializer); ok {
			if err := init.Init(ctx); err != nil {
				return &LoadError{Module: h.Name(), Cause: err}
			}
		}
	}
	return nil
}

// Hooks returns the resolved, ordered hook list.
func (m *Manager) Hooks() []Hook {
	return m.hooks
}

// RunAll invokes every hook's ProcessReceipt in order. A hook returning an
// error is accumulated into a multierror and logged by the caller, but does
// not stop the remaining hooks from running (spec.md §4.7 step 3).
func RunAll(ctx context.Context, hooks []Hook, txHash common.Hash, receipt *ethtypes.Receipt, namespace string) error {
	var merr *multierror.Error
	for _, h := range hooks {
		if err := h.ProcessReceipt(ctx, txHash, receipt, namespace); err != nil {
			merr = multierror.Append(merr, &HookError{Hook: h.Name(), Cause: err})
		}
	}
	return merr.ErrorOrNil()
}
