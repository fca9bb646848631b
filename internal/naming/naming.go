// Package naming resolves resource names to pooled data sources. A Context
// is built from an ordered list of environment properties; the property
// FactoryProperty selects the Factory that builds it.
package naming

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vibesql/sqlrun/internal/database"
)

// Well known environment properties
const (
	FactoryProperty  = "naming.factory.initial"
	ProviderProperty = "naming.provider.url"
)

// Factory names registered by this package
const (
	FactoryBound      = "bound"
	FactoryProperties = "properties"
	FactoryFile       = "file"
)

// DataSource hands out connections from a pool.
type DataSource = database.DataSource

// Context resolves resource names. Close releases what the context opened.
type Context interface {
	Lookup(ctx context.Context, name string) (DataSource, error)
	Close() error
}

var _ database.Resolver = (Context)(nil)

// Property is one environment entry.
type Property struct {
	Key   string
	Value string
}

// Environment is an ordered list of properties. Later entries win.
type Environment []Property

// Get returns the last value set for key.
func (e Environment) Get(key string) (string, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		if e[i].Key == key {
			return e[i].Value, true
		}
	}
	return "", false
}

// Factory builds a Context from an environment.
type Factory func(env Environment) (Context, error)

var (
	factoriesLock sync.RWMutex
	factories     = map[string]Factory{}
)

func init() {
	Register(FactoryBound, newBoundContext)
	Register(FactoryProperties, newPropertiesContext)
	Register(FactoryFile, newFileContext)
}

// Register makes a factory available by name. Registering the same name
// twice replaces the previous factory.
func Register(name string, factory Factory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()

	factories[name] = factory
}

// Factories returns the registered factory names, sorted.
func Factories() []string {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitialContext builds the context selected by env. Without a factory
// property the bound factory is used.
func InitialContext(env Environment) (Context, error) {
	name, ok := env.Get(FactoryProperty)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		name = FactoryBound
	}

	factoriesLock.RLock()
	factory, found := factories[name]
	factoriesLock.RUnlock()

	if !found {
		return nil, fmt.Errorf("unknown naming factory %q (available: %s)", name, strings.Join(Factories(), ", "))
	}

	nctx, err := factory(env)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s naming context: %w", name, err)
	}

	return nctx, nil
}

// NameNotFoundError reports a name with no binding or definition.
type NameNotFoundError struct {
	Name string
}

func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("name %q is not bound", e.Name)
}
