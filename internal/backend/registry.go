package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory attaches to a resolved bundle and returns a ready Model.
type Factory func(bundle Bundle) (Model, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a factory available under the given model type. Types are
// case-insensitive. Later registrations replace earlier ones.
func Register(modelType string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[Normalize(modelType)] = f
}

// Open looks up the factory for bundle.ModelType and attaches it.
func Open(bundle Bundle) (Model, error) {
	regMu.RLock()
	f, ok := factories[Normalize(bundle.ModelType)]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no backend for model type %q (available: %s)", bundle.ModelType, Available())
	}
	return f(bundle)
}

// Supported reports whether a factory is registered for the model type.
func Supported(modelType string) bool {
	regMu.RLock()
	defer regMu.RUnlock()
	_, ok := factories[Normalize(modelType)]
	return ok
}

// Available returns the registered model types, sorted, comma separated.
func Available() string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Normalize canonicalizes a model type for registry lookup.
func Normalize(modelType string) string {
	return strings.ToLower(strings.TrimSpace(modelType))
}
