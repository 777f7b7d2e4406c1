package uow

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================================
// Core Types and Constants
// =====================================

// Config represents the connection configuration consumed by the adapter packages.
type Config struct {
	// Connection details
	Driver        string `json:"driver" yaml:"driver" mapstructure:"driver"`
	ConnectionURL string `json:"connection_url" yaml:"connection_url" mapstructure:"connection_url"`
	Host          string `json:"host" yaml:"host" mapstructure:"host"`
	Port          int    `json:"port" yaml:"port" mapstructure:"port"`
	Database      string `json:"database" yaml:"database" mapstructure:"database"`
	Username      string `json:"username" yaml:"username" mapstructure:"username"`
	Password      string `json:"password" yaml:"password" mapstructure:"password"`

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// IsolationLevel is the default level for units of work created from this config.
	IsolationLevel IsolationLevel `json:"isolation_level" yaml:"isolation_level" mapstructure:"isolation_level"`

	// Additional options, keyed by adapter name ("gorm", "bun", "redis", "mongo")
	Options map[string]interface{} `json:"options" yaml:"options" mapstructure:"options"`

	// SSL/TLS configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" mapstructure:"ssl"`
}

// SSLConfig represents SSL/TLS configuration
type SSLConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Mode     string `json:"mode" yaml:"mode" mapstructure:"mode"`
	CertFile string `json:"cert_file" yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file" mapstructure:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file" mapstructure:"ca_file"`
}

// AdapterOptions returns the options map registered for the named adapter, or nil.
func (c Config) AdapterOptions(name string) map[string]interface{} {
	if opts, ok := c.Options[name]; ok {
		if m, ok := opts.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

// IsolationLevel is the consistency strength requested for a transaction.
type IsolationLevel string

const (
	LevelDefault         IsolationLevel = ""
	LevelReadUncommitted IsolationLevel = "read_uncommitted"
	LevelReadCommitted   IsolationLevel = "read_committed"
	LevelRepeatableRead  IsolationLevel = "repeatable_read"
	LevelSnapshot        IsolationLevel = "snapshot"
	LevelSerializable    IsolationLevel = "serializable"
)

// DefaultIsolationLevel is used whenever no level is given.
const DefaultIsolationLevel = LevelReadCommitted

// ParseIsolationLevel accepts snake case, kebab case or space separated names,
// case-insensitively. An empty string yields DefaultIsolationLevel.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch IsolationLevel(norm) {
	case LevelDefault:
		return DefaultIsolationLevel, nil
	case LevelReadUncommitted, LevelReadCommitted, LevelRepeatableRead, LevelSnapshot, LevelSerializable:
		return IsolationLevel(norm), nil
	}
	return "", NewError(ErrorKindInvalidArgument, fmt.Sprintf("unknown isolation level %q", s))
}

// OrDefault returns DefaultIsolationLevel when l is unset.
func (l IsolationLevel) OrDefault() IsolationLevel {
	if l == LevelDefault {
		return DefaultIsolationLevel
	}
	return l
}

// SQL maps the level onto database/sql.
func (l IsolationLevel) SQL() sql.IsolationLevel {
	switch l {
	case LevelReadUncommitted:
		return sql.LevelReadUncommitted
	case LevelReadCommitted:
		return sql.LevelReadCommitted
	case LevelRepeatableRead:
		return sql.LevelRepeatableRead
	case LevelSnapshot:
		return sql.LevelSnapshot
	case LevelSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// TxOptions returns database/sql transaction options for the level.
func (l IsolationLevel) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: l.SQL()}
}

func (l IsolationLevel) String() string {
	if l == LevelDefault {
		return "default"
	}
	return string(l)
}
