package uow

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override read by LoadConfig.
const EnvPrefix = "UOW"

var configKeys = []string{
	"driver",
	"connection_url",
	"host",
	"port",
	"database",
	"username",
	"password",
	"max_open_conns",
	"max_idle_conns",
	"conn_max_lifetime",
	"conn_max_idle_time",
	"isolation_level",
	"ssl.enabled",
	"ssl.mode",
	"ssl.cert_file",
	"ssl.key_file",
	"ssl.ca_file",
}

// LoadConfig reads a Config from the file at path (any format viper understands)
// and applies UOW_* environment overrides, e.g. UOW_HOST or UOW_SSL_MODE.
// An empty path reads the environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("isolation_level", string(DefaultIsolationLevel))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, NewErrorWithCause(ErrorKindConfiguration, "failed to bind environment for "+key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, NewErrorWithCause(ErrorKindConfiguration, "failed to read config file "+path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, NewErrorWithCause(ErrorKindConfiguration, "failed to decode config", err)
	}

	level, err := ParseIsolationLevel(string(cfg.IsolationLevel))
	if err != nil {
		return Config{}, NewErrorWithCause(ErrorKindConfiguration, "invalid isolation_level", err)
	}
	cfg.IsolationLevel = level

	return cfg, nil
}
