package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names registered by this package's imports.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// driverAliases lets host configurations written against class style driver
// names keep working.
var driverAliases = map[string]string{
	"org.postgresql.Driver": DriverPostgres,
	"postgresql":            DriverPostgres,
	"pq":                    DriverPostgres,
	"org.sqlite.JDBC":       DriverSQLite,
	"sqlite":                DriverSQLite,
}

// ResolveDriver maps a configured driver name to a registered database/sql
// driver.
func ResolveDriver(name string) (string, error) {
	name = strings.TrimSpace(name)
	if alias, ok := driverAliases[name]; ok {
		name = alias
	}

	if name == "" {
		return "", fmt.Errorf("driver name is empty")
	}

	if !slices.Contains(sql.Drivers(), name) {
		return "", fmt.Errorf("driver %q is not registered (available: %s)", name, strings.Join(sql.Drivers(), ", "))
	}

	return name, nil
}

// BuildDataSourceName folds credentials into the driver specific DSN. An
// empty username leaves the DSN untouched; an empty password connects
// without one.
func BuildDataSourceName(driver string, dsn string, username string, password string) (string, error) {
	if username == "" {
		return dsn, nil
	}

	switch driver {
	case DriverSQLite:
		return dsn, nil
	case DriverPostgres:
		return buildPostgresDSN(dsn, username, password)
	default:
		return buildURLDSN(dsn, username, password), nil
	}
}

func buildPostgresDSN(dsn string, username string, password string) (string, error) {
	if strings.Contains(dsn, "://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("failed to parse postgres url: %w", err)
		}
		dsn = converted
	}

	connStr := strings.TrimSpace(dsn)
	if connStr != "" {
		connStr += " "
	}
	connStr += fmt.Sprintf("user=%s", quotePostgresValue(username))

	if password != "" {
		connStr += fmt.Sprintf(" password=%s", quotePostgresValue(password))
	}

	return connStr, nil
}

// quotePostgresValue quotes a key/value DSN value the way libpq expects.
func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " '\\") {
		return value
	}

	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}

func buildURLDSN(dsn string, username string, password string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return dsn
	}

	if password != "" {
		u.User = url.UserPassword(username, password)
	} else {
		u.User = url.User(username)
	}

	return u.String()
}
