// Package modules loads script source files from the source directory,
// compiles them in strict mode and caches the compiled program so that a
// reload within the same process is cheap.
package modules

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/dop251/goja"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("amxjs.modules")

// Modulator compiles and runs script modules relative to a single root
// directory. Compiled programs are cached by their cleaned relative path.
type Modulator struct {
	vm    *goja.Runtime
	root  string
	cache map[string]*goja.Program
}

// New creates a modulator rooted at the given source directory.
func New(vm *goja.Runtime, root string) *Modulator {
	return &Modulator{
		vm:    vm,
		root:  root,
		cache: make(map[string]*goja.Program),
	}
}

// LoadModule reads, compiles and runs the module at the given path,
// relative to the source directory. The compiled program is cached, so a
// second load skips reading and compiling but still runs.
func (m *Modulator) LoadModule(modulePath string) (goja.Value, error) {
	cleaned := path.Clean(modulePath)

	program := m.cache[cleaned]
	if program == nil {
		source, err := os.ReadFile(path.Join(m.root, cleaned))
		if err != nil {
			return nil, fmt.Errorf("modules: reading %s: %w", cleaned, err)
		}
		program, err = goja.Compile(cleaned, string(source), true)
		if err != nil {
			return nil, fmt.Errorf("modules: compiling %s: %w", cleaned, err)
		}
		m.cache[cleaned] = program
		log.Debugf("compiled module: %s", cleaned)
	}

	result, err := m.vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("modules: running %s: %w", cleaned, err)
	}
	return result, nil
}

// ClearCache drops cached programs whose path starts with the given
// prefix, or every cached program when the prefix is empty. It returns
// the number of entries removed.
func (m *Modulator) ClearCache(prefix string) int {
	removed := 0
	for key := range m.cache {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			delete(m.cache, key)
			removed++
		}
	}
	return removed
}

// CacheSize returns the number of cached compiled programs.
func (m *Modulator) CacheSize() int {
	return len(m.cache)
}

// Root returns the source directory modules are loaded from.
func (m *Modulator) Root() string {
	return m.root
}
