package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/authorizer-tech/link-registry/internal/registry"
)

const envPrefix = "LINK_REGISTRY"

type Config struct {
	Registry struct {
		ServersDir string
		DataDir    string
		CacheTTL   time.Duration
	}

	HTTP struct {
		Port             int
		ClientCertHeader string

		TLS struct {
			CertFile string
			KeyFile  string
		}
	}

	GRPC struct {
		Port int
	}

	UpdateLog struct {
		Backend string
	}

	Postgres struct {
		Host       string
		Port       int
		Database   string
		Username   string
		Password   string
		Migrations string
	}

	Log struct {
		Level  string
		Format string
	}
}

// loadConfig reads the config file at path, if one is given, and overlays the
// environment on top of it. Environment variables are the upper-cased keys with
// dots replaced by underscores and the LINK_REGISTRY_ prefix, e.g.
// LINK_REGISTRY_HTTP_PORT. The Postgres credentials are read from
// POSTGRES_USERNAME and POSTGRES_PASSWORD.
func loadConfig(path string) (Config, error) {

	v := viper.New()

	v.SetDefault("registry.serversDir", "servers")
	v.SetDefault("registry.dataDir", "data")
	v.SetDefault("registry.cacheTTL", registry.DefaultTTL)
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.clientCertHeader", "")
	v.SetDefault("http.tls.certFile", "")
	v.SetDefault("http.tls.keyFile", "")
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("updateLog.backend", "inmem")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.database", "postgres")
	v.SetDefault("postgres.migrations", "db/migrations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("postgres.username", "POSTGRES_USERNAME"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("postgres.password", "POSTGRES_PASSWORD"); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load server config file '%s'", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal server config")
	}

	switch cfg.UpdateLog.Backend {
	case "inmem", "postgres":
	default:
		return Config{}, errors.Errorf("unknown update log backend '%s'", cfg.UpdateLog.Backend)
	}

	if (cfg.HTTP.TLS.CertFile == "") != (cfg.HTTP.TLS.KeyFile == "") {
		return Config{}, errors.New("both or neither of 'http.tls.certFile' and 'http.tls.keyFile' must be set")
	}

	if cfg.Registry.CacheTTL < 0 {
		return Config{}, errors.New("'registry.cacheTTL' must not be negative")
	}

	return cfg, nil
}

func configureLogging(level, format string) error {

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	switch format {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format '%s'", format)
	}

	return nil
}
