package naming

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/vibesql/sqlrun/internal/database"
)

const (
	maxOpenConnections = 5
	maxIdleConnections = 2
	connMaxLifetime    = 1 * time.Hour
	connMaxIdleTime    = 10 * time.Minute
)

// ResourceConfig declares one pooled data source.
type ResourceConfig struct {
	Name         string `mapstructure:"name"`
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
}

// OpenPool opens the connection pool described by cfg. Zero pool sizes fall
// back to the defaults.
func OpenPool(cfg ResourceConfig) (*sql.DB, error) {
	driver, err := database.ResolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := database.BuildDataSourceName(driver, cfg.URL, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource %q: %w", cfg.Name, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = maxOpenConnections
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = maxIdleConnections
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return db, nil
}

// LoadResources reads datasource definitions from a YAML, JSON or TOML file.
// The file holds a list under the "datasources" key.
func LoadResources(path string) ([]ResourceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read resources: %w", err)
	}

	var resources []ResourceConfig
	if err := v.UnmarshalKey("datasources", &resources); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}

	seen := make(map[string]bool, len(resources))
	for i, res := range resources {
		if res.Name == "" {
			return nil, fmt.Errorf("datasource #%d in %s has no name", i+1, path)
		}
		if seen[res.Name] {
			return nil, fmt.Errorf("datasource %q is defined more than once in %s", res.Name, path)
		}
		seen[res.Name] = true
	}

	return resources, nil
}

// ownedContext opens the pools it is asked for and closes them on Close.
type ownedContext struct {
	lock      sync.Mutex
	resources map[string]ResourceConfig
	pools     map[string]*sql.DB
}

func newOwnedContext(resources []ResourceConfig) *ownedContext {
	c := &ownedContext{
		resources: make(map[string]ResourceConfig, len(resources)),
		pools:     map[string]*sql.DB{},
	}
	for _, res := range resources {
		c.resources[res.Name] = res
	}
	return c
}

func (c *ownedContext) Lookup(_ context.Context, name string) (DataSource, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if db, ok := c.pools[name]; ok {
		return db, nil
	}

	res, ok := c.resources[name]
	if !ok {
		return nil, &NameNotFoundError{Name: name}
	}

	db, err := OpenPool(res)
	if err != nil {
		return nil, err
	}

	c.pools[name] = db
	return db, nil
}

func (c *ownedContext) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	var errs []error
	for name, db := range c.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close datasource %q: %w", name, err))
		}
		delete(c.pools, name)
	}

	return errors.Join(errs...)
}

// newPropertiesContext reads resources declared inline as
// "<name>.driver", "<name>.url" and so on.
func newPropertiesContext(env Environment) (Context, error) {
	byName := map[string]*ResourceConfig{}
	var order []string

	for _, prop := range env {
		if strings.HasPrefix(prop.Key, "naming.") {
			continue
		}

		idx := strings.LastIndex(prop.Key, ".")
		if idx <= 0 || idx == len(prop.Key)-1 {
			continue
		}
		name, field := prop.Key[:idx], prop.Key[idx+1:]

		res, ok := byName[name]
		if !ok {
			res = &ResourceConfig{Name: name}
			byName[name] = res
			order = append(order, name)
		}

		switch field {
		case "driver":
			res.Driver = prop.Value
		case "url":
			res.URL = prop.Value
		case "username":
			res.Username = prop.Value
		case "password":
			res.Password = prop.Value
		case "maxOpenConns", "maxIdleConns":
			n, err := strconv.Atoi(prop.Value)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", prop.Key, err)
			}
			if field == "maxOpenConns" {
				res.MaxOpenConns = n
			} else {
				res.MaxIdleConns = n
			}
		}
	}

	resources := make([]ResourceConfig, 0, len(order))
	for _, name := range order {
		resources = append(resources, *byName[name])
	}

	return newOwnedContext(resources), nil
}

func newFileContext(env Environment) (Context, error) {
	path, ok := env.Get(ProviderProperty)
	if !ok || path == "" {
		return nil, fmt.Errorf("property %s is required", ProviderProperty)
	}

	resources, err := LoadResources(path)
	if err != nil {
		return nil, err
	}

	return newOwnedContext(resources), nil
}
