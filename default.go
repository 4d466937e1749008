package edgedash

import (
	"fmt"
	"sync"
)

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Init creates the process-wide [Registry] with opts. It is meant to be
// called once at startup; the registry lives for the rest of the process.
//
// A second call returns the existing registry together with
// [ErrAlreadyInitialized]; its options are ignored.
func Init(opts ...Option) (*Registry, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry != nil {
		return defaultRegistry, ErrAlreadyInitialized
	}
	r, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defaultRegistry = r
	return r, nil
}

// Default returns the process-wide [Registry], creating it with default
// options if [Init] was not called.
//
// Default panics if the registry cannot be created, which only happens when
// $CATCHER_URL holds a malformed URL.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry == nil {
		r, err := New()
		if err != nil {
			panic(fmt.Sprintf("edgedash: creating default registry: %v", err))
		}
		defaultRegistry = r
	}
	return defaultRegistry
}
