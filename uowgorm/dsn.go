package uowgorm

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/lemmego/uow"
)

// =====================================
// DSN Builders
// =====================================

// Every builder returns config.ConnectionURL unchanged when it is set.

// buildPostgresDSN builds a libpq keyword/value DSN. Values containing spaces,
// quotes or backslashes are quoted.
func buildPostgresDSN(config uow.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	pairs := [][2]string{
		{"host", config.Host},
		{"port", strconv.Itoa(config.Port)},
		{"user", config.Username},
		{"password", config.Password},
		{"dbname", config.Database},
	}
	if !config.SSL.Enabled {
		pairs = append(pairs, [2]string{"sslmode", "disable"})
	} else {
		pairs = append(pairs,
			[2]string{"sslmode", config.SSL.Mode},
			[2]string{"sslcert", config.SSL.CertFile},
			[2]string{"sslkey", config.SSL.KeyFile},
			[2]string{"sslrootcert", config.SSL.CAFile},
		)
	}

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		if kv[1] == "" && strings.HasPrefix(kv[0], "ssl") {
			continue
		}
		parts = append(parts, kv[0]+"="+quotePostgresValue(kv[1]))
	}
	return strings.Join(parts, " ")
}

func quotePostgresValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// buildMySQLDSN builds a go-sql-driver DSN with utf8mb4 and parsed times in the
// local zone. An enabled SSL mode other than skip-verify, preferred or false
// requires verified TLS.
func buildMySQLDSN(config uow.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	cfg := mysqldrv.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	if config.SSL.Enabled {
		switch mode := strings.ToLower(config.SSL.Mode); mode {
		case "skip-verify", "preferred", "false":
			cfg.TLSConfig = mode
		default:
			cfg.TLSConfig = "true"
		}
	}
	return cfg.FormatDSN()
}

// buildSQLServerDSN builds a sqlserver:// URL. SSL turns on encryption.
func buildSQLServerDSN(config uow.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	q := url.Values{"database": {config.Database}}
	if config.SSL.Enabled {
		q.Set("encrypt", "true")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}
