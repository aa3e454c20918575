// Package config loads the sidecar's AppConfig from an optional TOML
// file, falling back to an environment-variable cascade, the way the
// teacher's mainboilerplate-style entrypoints resolve flags through
// github.com/jessevdk/go-flags env tags -- except the per-endpoint
// override hierarchy below (ACTIVE_DB_* / PASSIVE_DB_* over DB_* over
// compiled-in defaults) is bespoke to this sidecar and isn't expressible
// as a single flag struct, so it's hand-rolled here.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// DbEndpoint describes one cluster's connection coordinates.
type DbEndpoint struct {
	Host                  string `toml:"host"`
	Port                  uint16 `toml:"port"`
	Keyspace              string `toml:"keyspace"`
	Datacenter            string `toml:"datacenter"`
	Rack                  string `toml:"rack"`
	Username              string `toml:"username"`
	Password              string `toml:"password"`
	UseTLS                bool   `toml:"use_tls"`
	TLSCAFile             string `toml:"tls_ca_file"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`
	ReplicationFactor     uint32 `toml:"replication_factor"`
	DurableWrites         bool   `toml:"durable_writes"`
}

// DriverConfig describes CQL driver-level connection options, shared by
// both endpoints.
type DriverConfig struct {
	RequestTimeoutMs    uint64 `toml:"request_timeout_ms"`
	ConnectionTimeoutMs uint64 `toml:"connection_timeout_ms"`
	TCPKeepaliveSecs    uint64 `toml:"tcp_keepalive_secs"`
	Compression         string `toml:"compression"`
	DefaultPageSize     int32  `toml:"default_page_size"`
}

// ServerConfig is the HTTP surface's bind address.
type ServerConfig struct {
	BindAddr string `toml:"bind_addr"`
}

// WorkerConfig parametrizes the SyncWorker.
type WorkerConfig struct {
	IntervalMs          uint64 `toml:"interval_ms"`
	MaxReplayPerTick    int    `toml:"max_replay_per_tick"`
	DriftRecThreshold   int    `toml:"drift_rec_threshold"`
	DriftBytesThreshold uint64 `toml:"drift_bytes_threshold"`
}

// AppConfig is the fully-resolved configuration of one sidecar process.
type AppConfig struct {
	Active  DbEndpoint   `toml:"active"`
	Passive DbEndpoint   `toml:"passive"`
	Driver  DriverConfig `toml:"driver"`
	Server  ServerConfig `toml:"server"`
	Worker  WorkerConfig `toml:"worker"`
}

// DefaultDbEndpoint returns the compiled-in Active-cluster defaults.
func DefaultDbEndpoint() DbEndpoint {
	return DbEndpoint{
		Host:              "127.0.0.1",
		Port:              9042,
		Keyspace:          "duosidecar",
		Datacenter:        "asia-southeast2",
		Rack:              "asia-southeast2-a",
		Username:          "cassandra",
		Password:          "cassandra",
		ReplicationFactor: 3,
		DurableWrites:     true,
	}
}

// Default returns the full set of compiled-in defaults.
func Default() AppConfig {
	var active = DefaultDbEndpoint()
	var passive = active
	passive.Port = 9043
	passive.Rack = "asia-southeast2-b"

	return AppConfig{
		Active:  active,
		Passive: passive,
		Driver:  DriverConfig{},
		Server:  ServerConfig{BindAddr: "127.0.0.1:8080"},
		Worker: WorkerConfig{
			IntervalMs:          1000,
			MaxReplayPerTick:    128,
			DriftRecThreshold:   100,
			DriftBytesThreshold: 1_000_000,
		},
	}
}

// FromEnv resolves AppConfig purely from environment variables, per
// scenario S1: DB_* is the global fallback shared by both endpoints,
// ACTIVE_DB_*/PASSIVE_DB_* take precedence over it, and a parse failure
// at any tier falls through to the next tier rather than erroring.
func FromEnv() AppConfig {
	var defaults = Default()
	return AppConfig{
		Active:  dbEndpointFromEnv("ACTIVE_DB", "DB", defaults.Active),
		Passive: dbEndpointFromEnv("PASSIVE_DB", "DB", defaults.Passive),
		Driver:  driverConfigFromEnv("DB"),
		Server:  serverConfigFromEnv("WEB", defaults.Server),
		Worker:  defaults.Worker,
	}
}

// configFilePathEnv names the env var that overrides the config file path.
const configFilePathEnv = "DUOSIDECAR_CONFIG_FILE"
const defaultConfigFile = "config/duosidecar.toml"

// Load resolves AppConfig from a TOML file if one is found, falling back
// to FromEnv on any read or parse error.
func Load() AppConfig {
	var path = defaultConfigFile
	if p, ok := os.LookupEnv(configFilePathEnv); ok && p != "" {
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return FromEnv()
	}

	var cfg = Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to parse config file, falling back to env")
		return FromEnv()
	}
	return cfg
}

func dbEndpointFromEnv(prefix, globalPrefix string, defaults DbEndpoint) DbEndpoint {
	return DbEndpoint{
		Host:                  readEnvString(prefix, globalPrefix, "HOST", defaults.Host),
		Port:                  readEnvU16(prefix, globalPrefix, "PORT", defaults.Port),
		Keyspace:              readEnvString(prefix, globalPrefix, "KEYSPACE", defaults.Keyspace),
		Datacenter:            readEnvString(prefix, globalPrefix, "DATACENTER", defaults.Datacenter),
		Rack:                  readEnvString(prefix, globalPrefix, "RACK", defaults.Rack),
		Username:              readEnvString(prefix, globalPrefix, "USERNAME", defaults.Username),
		Password:              readEnvString(prefix, globalPrefix, "PASSWORD", defaults.Password),
		UseTLS:                readEnvBool(prefix, globalPrefix, "USE_TLS", defaults.UseTLS),
		TLSCAFile:             readEnvStringScoped(prefix, globalPrefix, "TLS_CA_FILE", defaults.TLSCAFile),
		TLSInsecureSkipVerify: readEnvBool(prefix, globalPrefix, "TLS_INSECURE_SKIP_VERIFY", defaults.TLSInsecureSkipVerify),
		ReplicationFactor:     defaults.ReplicationFactor,
		DurableWrites:         defaults.DurableWrites,
	}
}

func driverConfigFromEnv(globalPrefix string) DriverConfig {
	return DriverConfig{
		RequestTimeoutMs:    readEnvOptU64(globalPrefix, "REQUEST_TIMEOUT_MS"),
		ConnectionTimeoutMs: readEnvOptU64(globalPrefix, "CONNECTION_TIMEOUT_MS"),
		TCPKeepaliveSecs:    readEnvOptU64(globalPrefix, "TCP_KEEPALIVE_SECS"),
		Compression:         readEnvOptString(globalPrefix, "COMPRESSION"),
		DefaultPageSize:     readEnvOptI32(globalPrefix, "DEFAULT_PAGE_SIZE"),
	}
}

func serverConfigFromEnv(prefix string, defaults ServerConfig) ServerConfig {
	if v, ok := os.LookupEnv(prefix + "_BIND_ADDR"); ok {
		return ServerConfig{BindAddr: v}
	}
	return defaults
}

func readEnvString(prefix, globalPrefix, name, def string) string {
	if v, ok := os.LookupEnv(prefix + "_" + name); ok {
		return v
	}
	if globalPrefix != "" {
		if v, ok := os.LookupEnv(globalPrefix + "_" + name); ok {
			return v
		}
	}
	return def
}

func readEnvStringScoped(prefix, globalPrefix, name, def string) string {
	if v, ok := os.LookupEnv(prefix + "_" + name); ok {
		return v
	}
	if globalPrefix != "" {
		if v, ok := os.LookupEnv(globalPrefix + "_" + name); ok {
			return v
		}
	}
	return def
}

func readEnvU16(prefix, globalPrefix, name string, def uint16) uint16 {
	if v, ok := os.LookupEnv(prefix + "_" + name); ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			return uint16(n)
		}
	}
	if globalPrefix != "" {
		if v, ok := os.LookupEnv(globalPrefix + "_" + name); ok {
			if n, err := strconv.ParseUint(v, 10, 16); err == nil {
				return uint16(n)
			}
		}
	}
	return def
}

func readEnvBool(prefix, globalPrefix, name string, def bool) bool {
	if v, ok := os.LookupEnv(prefix + "_" + name); ok {
		if b, err := parseBool(v); err == nil {
			return b
		}
	}
	if globalPrefix != "" {
		if v, ok := os.LookupEnv(globalPrefix + "_" + name); ok {
			if b, err := parseBool(v); err == nil {
				return b
			}
		}
	}
	return def
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}

func readEnvOptU64(globalPrefix, name string) uint64 {
	v, ok := os.LookupEnv(globalPrefix + "_" + name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func readEnvOptI32(globalPrefix, name string) int32 {
	v, ok := os.LookupEnv(globalPrefix + "_" + name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

func readEnvOptString(globalPrefix, name string) string {
	v, _ := os.LookupEnv(globalPrefix + "_" + name)
	return v
}

// MaskSecret renders a secret as its first/last two characters with a
// fixed-width mask between, or "****" outright for short secrets, for
// safe inclusion in startup logs.
func MaskSecret(s string) string {
	var r = []rune(s)
	if len(r) <= 4 {
		return "****"
	}
	return string(r[:2]) + "****" + string(r[len(r)-2:])
}
