package naming

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var (
	bindingsLock sync.RWMutex
	bindings     = map[string]DataSource{}
)

// Bind publishes a data source under name for the bound factory. The caller
// keeps ownership of the pool.
func Bind(name string, ds DataSource) {
	bindingsLock.Lock()
	defer bindingsLock.Unlock()

	bindings[name] = ds
}

// Unbind removes a binding and returns what was bound.
func Unbind(name string) (DataSource, bool) {
	bindingsLock.Lock()
	defer bindingsLock.Unlock()

	ds, ok := bindings[name]
	delete(bindings, name)
	return ds, ok
}

type boundContext struct{}

func newBoundContext(_ Environment) (Context, error) {
	return boundContext{}, nil
}

func (boundContext) Lookup(_ context.Context, name string) (DataSource, error) {
	bindingsLock.RLock()
	defer bindingsLock.RUnlock()

	ds, ok := bindings[name]
	if !ok {
		return nil, &NameNotFoundError{Name: name}
	}
	return ds, nil
}

// Close does not touch bound pools; they belong to whoever bound them.
func (boundContext) Close() error {
	return nil
}

// BindResources opens a pool per resource and binds it under the resource
// name. Names must be unique. release unbinds and closes every pool opened
// here. On error nothing stays bound.
func BindResources(resources []ResourceConfig) (release func() error, err error) {
	pools := make(map[string]*sql.DB, len(resources))

	release = func() error {
		var errs []error
		for name, db := range pools {
			Unbind(name)
			errs = append(errs, db.Close())
		}
		clear(pools)
		return errors.Join(errs...)
	}

	for _, res := range resources {
		if _, ok := pools[res.Name]; ok {
			_ = release()
			return nil, fmt.Errorf("datasource %q is defined more than once", res.Name)
		}

		db, err := OpenPool(res)
		if err != nil {
			_ = release()
			return nil, err
		}
		pools[res.Name] = db
		Bind(res.Name, db)
	}

	return release, nil
}
