// Package config loads DiskDB's server configuration from environment
// variables (spec.md §6), the same default-then-override shape the
// teacher's server/server.go applies to its `flag` definitions, just read
// from os.Getenv instead.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

const (
	defaultPort           = 6380
	defaultPath           = "./diskdb"
	defaultMaxConnections = 1000
)

// Config holds the server's environment-derived settings.
type Config struct {
	Port           int
	Path           string
	UseTLS         bool
	CertPath       string
	KeyPath        string
	MaxConnections int
}

// FromEnv reads DISKDB_PORT, DISKDB_PATH, DISKDB_USE_TLS, DISKDB_CERT_PATH,
// DISKDB_KEY_PATH, and DISKDB_MAX_CONNECTIONS, applying spec.md §6's
// defaults for any that are unset.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           defaultPort,
		Path:           defaultPath,
		MaxConnections: defaultMaxConnections,
	}

	if v := os.Getenv("DISKDB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "DISKDB_PORT")
		}
		cfg.Port = port
	}

	if v := os.Getenv("DISKDB_PATH"); v != "" {
		cfg.Path = v
	}

	if v := os.Getenv("DISKDB_USE_TLS"); v != "" {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Wrap(err, "DISKDB_USE_TLS")
		}
		cfg.UseTLS = useTLS
	}

	cfg.CertPath = os.Getenv("DISKDB_CERT_PATH")
	cfg.KeyPath = os.Getenv("DISKDB_KEY_PATH")

	if v := os.Getenv("DISKDB_MAX_CONNECTIONS"); v != "" {
		max, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "DISKDB_MAX_CONNECTIONS")
		}
		cfg.MaxConnections = max
	}

	if cfg.UseTLS && (cfg.CertPath == "" || cfg.KeyPath == "") {
		return nil, errors.New("DISKDB_USE_TLS is set but DISKDB_CERT_PATH/DISKDB_KEY_PATH are not")
	}

	return cfg, nil
}
