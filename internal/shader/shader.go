// Package shader compiles WGSL shader sources to SPIR-V.
//
// Sources are registered in a Library, which stores them in a slab and hands
// out stable keys. Compile translates every pending module with naga, one pool
// task per module, and records either the SPIR-V words or the error.
package shader

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/naga"

	cells "github.com/psincf/Cells-sub001"
	"github.com/psincf/Cells-sub001/slab"
	"github.com/psincf/Cells-sub001/threadpool"
)

//go:embed shaders/cell.wgsl
var cellSource string

//go:embed shaders/blit.wgsl
var blitSource string

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

var (
	// ErrNotAligned is returned for SPIR-V byte streams whose length is not a
	// multiple of four.
	ErrNotAligned = errors.New("shader: spir-v length is not a multiple of 4")

	// ErrBadMagic is returned when a SPIR-V stream does not start with
	// SPIRVMagic.
	ErrBadMagic = errors.New("shader: bad spir-v magic")
)

// Builtin returns the embedded shader sources by name.
func Builtin() map[string]string {
	return map[string]string{
		"cell": cellSource,
		"blit": blitSource,
	}
}

// Words converts a little-endian SPIR-V byte stream into 32-bit words.
func Words(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotAligned, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if len(words) == 0 || words[0] != SPIRVMagic {
		return nil, ErrBadMagic
	}
	return words, nil
}

// Module is one registered shader.
type Module struct {
	Name   string
	Source string

	// SPIRV holds the compiled words once Compile succeeded.
	SPIRV []uint32

	// Err holds the compile error once Compile failed.
	Err error
}

// Compiled reports whether the module compiled successfully.
func (m *Module) Compiled() bool { return m.SPIRV != nil }

// pending reports whether the module still needs a compile attempt.
func (m *Module) pending() bool { return m.SPIRV == nil && m.Err == nil }

// Library is a keyed collection of shader modules.
// It is safe for concurrent use.
type Library struct {
	mu      sync.Mutex
	modules *slab.Slab[Module]
	byName  map[string]slab.Key
	log     *slog.Logger
}

// NewLibrary creates an empty library that logs through cells.Logger.
func NewLibrary() *Library {
	return &Library{
		modules: slab.New[Module](),
		byName:  make(map[string]slab.Key),
		log:     cells.Logger(),
	}
}

// Add registers source under name and returns its key. A module already
// registered under name is replaced and its key stops resolving.
func (l *Library) Add(name, source string) slab.Key {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.byName[name]; ok {
		l.modules.Remove(old)
	}
	k := l.modules.Insert(Module{Name: name, Source: source})
	l.byName[name] = k
	return k
}

// Lookup returns the key registered under name.
func (l *Library) Lookup(name string) (slab.Key, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.byName[name]
	return k, ok
}

// Get returns a copy of the module addressed by k.
func (l *Library) Get(k slab.Key) (Module, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.modules.Get(k)
}

// Remove unregisters the module addressed by k.
func (l *Library) Remove(k slab.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.modules.Remove(k)
	if ok && l.byName[m.Name] == k {
		delete(l.byName, m.Name)
	}
	return ok
}

// Len returns the number of registered modules.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.modules.Len()
}

type job struct {
	key    slab.Key
	name   string
	source string
	words  []uint32
	err    error
}

// Compile compiles every module that has not been attempted yet, one pool
// task per module. Modules added or removed while Compile runs are left
// alone. The returned error joins every failure.
func (l *Library) Compile(pool *threadpool.Pool) error {
	l.mu.Lock()
	var jobs []job
	for k, m := range l.modules.All() {
		if m.pending() {
			jobs = append(jobs, job{key: k, name: m.Name, source: m.Source})
		}
	}
	l.mu.Unlock()

	if len(jobs) == 0 {
		return nil
	}

	pool.Scope(func(s *threadpool.Scope) {
		for i := range jobs {
			j := &jobs[i]
			s.Spawn(func() {
				j.words, j.err = compile(j.source)
			})
		}
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, j := range jobs {
		m, ok := l.modules.GetMut(j.key)
		if !ok || m.Source != j.source {
			continue
		}
		if j.err != nil {
			m.Err = j.err
			errs = append(errs, fmt.Errorf("shader %q: %w", j.name, j.err))
			continue
		}
		m.SPIRV = j.words
		l.log.Debug("shader: compiled", "name", j.name, "words", len(j.words))
	}
	return errors.Join(errs...)
}

func compile(source string) ([]uint32, error) {
	b, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	return Words(b)
}
