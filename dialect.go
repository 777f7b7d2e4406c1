package uow

import (
	"fmt"
	"strings"
)

// Dialect constants
const (
	DialectSQLite    = "sqlite"
	DialectMySQL     = "mysql"
	DialectPostgres  = "postgres"
	DialectSQLServer = "sqlserver"
)

// SupportedDialects is a list of all SQL dialects the adapters can open
var SupportedDialects = []string{
	DialectSQLite,
	DialectMySQL,
	DialectPostgres,
	DialectSQLServer,
}

var dialectAliases = map[string]string{
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
	"mysql":      DialectMySQL,
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"pgsql":      DialectPostgres,
	"pg":         DialectPostgres,
	"sqlserver":  DialectSQLServer,
	"mssql":      DialectSQLServer,
}

// NormalizeDialect maps a driver name or one of its aliases to a Dialect constant.
func NormalizeDialect(driver string) (string, error) {
	if d, ok := dialectAliases[strings.ToLower(strings.TrimSpace(driver))]; ok {
		return d, nil
	}
	return "", NewError(ErrorKindConfiguration, fmt.Sprintf("unsupported driver: %s", driver))
}

// IsDialectSupported checks if the given driver name resolves to a supported dialect
func IsDialectSupported(driver string) bool {
	_, err := NormalizeDialect(driver)
	return err == nil
}
