package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

var envKeys = []string{
	"ACTIVE_DB_HOST", "ACTIVE_DB_PORT", "ACTIVE_DB_KEYSPACE", "ACTIVE_DB_DATACENTER",
	"ACTIVE_DB_RACK", "ACTIVE_DB_USERNAME", "ACTIVE_DB_PASSWORD",
	"PASSIVE_DB_HOST", "PASSIVE_DB_PORT", "PASSIVE_DB_KEYSPACE", "PASSIVE_DB_DATACENTER",
	"PASSIVE_DB_RACK", "PASSIVE_DB_USERNAME", "PASSIVE_DB_PASSWORD",
	"DB_HOST", "DB_PORT", "DB_KEYSPACE", "DB_DATACENTER", "DB_RACK", "DB_USERNAME", "DB_PASSWORD",
}

// withEnv clears envKeys, applies overrides, runs fn, then restores the
// prior environment. Tests in this file must not run in parallel with
// each other since they share the process environment.
func withEnv(t *testing.T, overrides map[string]string, fn func()) {
	t.Helper()
	var backup = make(map[string]*string, len(envKeys))
	for _, k := range envKeys {
		if v, ok := os.LookupEnv(k); ok {
			var vv = v
			backup[k] = &vv
		} else {
			backup[k] = nil
		}
		os.Unsetenv(k)
	}
	for k, v := range overrides {
		os.Setenv(k, v)
	}
	defer func() {
		for k, v := range backup {
			if v == nil {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, *v)
			}
		}
	}()
	fn()
}

func TestConfigDefaultsAndOverrides(t *testing.T) {
	withEnv(t, nil, func() {
		var cfg = FromEnv()
		assert.Equal(t, "127.0.0.1", cfg.Active.Host)
		assert.EqualValues(t, 9043, cfg.Passive.Port)
		assert.Equal(t, "cassandra", cfg.Active.Username)
	})

	withEnv(t, map[string]string{"DB_HOST": "globalhost", "DB_PORT": "9999"}, func() {
		var cfg = FromEnv()
		assert.Equal(t, "globalhost", cfg.Active.Host)
		assert.Equal(t, "globalhost", cfg.Passive.Host)
		assert.EqualValues(t, 9999, cfg.Active.Port)
		assert.EqualValues(t, 9999, cfg.Passive.Port)
	})

	withEnv(t, map[string]string{"DB_HOST": "globalhost", "ACTIVE_DB_HOST": "activehost"}, func() {
		var cfg = FromEnv()
		assert.Equal(t, "activehost", cfg.Active.Host)
		assert.Equal(t, "globalhost", cfg.Passive.Host)
	})

	withEnv(t, map[string]string{"ACTIVE_DB_PORT": "not-a-number"}, func() {
		var cfg = FromEnv()
		assert.EqualValues(t, 9042, cfg.Active.Port)
	})

	withEnv(t, map[string]string{"ACTIVE_DB_USERNAME": ""}, func() {
		var cfg = FromEnv()
		assert.Equal(t, "", cfg.Active.Username)
	})
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "ca****ra", MaskSecret("cassandra"))
}
