// Package storage implements the per-thread named storages backing
// get/put/accumulate and broadcast delivery.
package storage

import (
	"reflect"
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

// AccumulateFunc combines the current stored value with an incoming
// one; it must be associative, since Reduce applies it pairwise up the
// tree in no particular fan-in order.
type AccumulateFunc func(current, incoming interface{}) interface{}

type variable struct {
	mutex   sync.Mutex
	value   interface{}
	typ     reflect.Type
	set     bool
	waiters []chan struct{}
}

// checkTypeLocked reports a type mismatch if the variable already
// holds a value and incoming has a different dynamic type. Caller
// must hold v.mutex. A nil incoming never mismatches, since it carries
// no type to compare.
func (v *variable) checkTypeLocked(incoming interface{}) error {
	if !v.set || incoming == nil || v.typ == nil {
		return nil
	}
	if reflect.TypeOf(incoming) != v.typ {
		return types.ErrTypeMismatch
	}
	return nil
}

// Storages is the per-thread mapping storageName -> (name -> value).
// One instance is owned by exactly one thread.
type Storages struct {
	mutex sync.RWMutex
	named map[string]map[string]*variable
}

// New returns an empty Storages for one thread.
func New() *Storages {
	return &Storages{named: make(map[string]map[string]*variable)}
}

func (s *Storages) bucket(storageName string, create bool) (map[string]*variable, error) {
	s.mutex.RLock()
	b, ok := s.named[storageName]
	s.mutex.RUnlock()
	if ok {
		return b, nil
	}
	if !create {
		return nil, types.ErrNoSuchStorage
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if b, ok = s.named[storageName]; ok {
		return b, nil
	}
	b = make(map[string]*variable)
	s.named[storageName] = b
	return b, nil
}

func (s *Storages) variableFor(storageName, name string, create bool) (*variable, error) {
	b, err := s.bucket(storageName, create)
	if err != nil {
		return nil, err
	}
	s.mutex.RLock()
	v, ok := b[name]
	s.mutex.RUnlock()
	if ok {
		return v, nil
	}
	if !create {
		return nil, types.ErrNoSuchVariable
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if v, ok = b[name]; ok {
		return v, nil
	}
	v = &variable{}
	b[name] = v
	return v, nil
}

// Register declares the given variable names in storageName as
// present, uninitialized. A subsequent Get before any Put still fails
// with NoSuchVariable: registration reserves the name, it does not
// seed a value.
func (s *Storages) Register(storageName string, names []string) error {
	for _, name := range names {
		if _, err := s.variableFor(storageName, name, true); err != nil {
			return err
		}
	}
	return nil
}

// Put writes value for (storageName, name), last-writer-wins, and
// wakes any Monitor waiters. Once a variable holds a value, every
// later Put/Accumulate must carry the same dynamic type or it fails
// with TypeMismatch.
func (s *Storages) Put(storageName, name string, value interface{}) error {
	v, err := s.variableFor(storageName, name, true)
	if err != nil {
		return err
	}
	v.mutex.Lock()
	if err := v.checkTypeLocked(value); err != nil {
		v.mutex.Unlock()
		return err
	}
	v.value = value
	if value != nil {
		v.typ = reflect.TypeOf(value)
	}
	v.set = true
	waiters := v.waiters
	v.waiters = nil
	v.mutex.Unlock()
	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Get reads the current value for (storageName, name). It fails fast
// with NoSuchStorage/NoSuchVariable if the name was never registered
// nor put.
func (s *Storages) Get(storageName, name string) (interface{}, error) {
	v, err := s.variableFor(storageName, name, false)
	if err != nil {
		return nil, err
	}
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if !v.set {
		return nil, types.ErrNoSuchVariable
	}
	return v.value, nil
}

// Accumulate combines incoming into the current value of (storageName,
// name) using fn, serialized so concurrent accumulates to the same
// variable never interleave. If the variable has no value yet,
// incoming becomes the initial value. A later incoming whose dynamic
// type differs from the variable's established type fails with
// TypeMismatch rather than being handed to fn.
func (s *Storages) Accumulate(storageName, name string, fn AccumulateFunc, incoming interface{}) error {
	v, err := s.variableFor(storageName, name, true)
	if err != nil {
		return err
	}
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if err := v.checkTypeLocked(incoming); err != nil {
		return err
	}
	if !v.set {
		v.value = incoming
	} else {
		v.value = fn(v.value, incoming)
	}
	if incoming != nil {
		v.typ = reflect.TypeOf(incoming)
	}
	v.set = true
	return nil
}

// Monitor blocks until the next Put to (storageName, name) after this
// call, or until done is closed. It is a condition-wait style
// primitive: it does not consume the value, a separate Get reads it.
func (s *Storages) Monitor(storageName, name string, done <-chan struct{}) error {
	v, err := s.variableFor(storageName, name, true)
	if err != nil {
		return err
	}
	v.mutex.Lock()
	ch := make(chan struct{})
	v.waiters = append(v.waiters, ch)
	v.mutex.Unlock()

	select {
	case <-ch:
		return nil
	case <-done:
		return types.ErrTimeout
	}
}
