// Package dbsession builds a *gocql.Session from one of the sidecar's
// DbEndpoint/DriverConfig pairs, translating the wire-level knobs
// (timeouts, keepalive, compression, TLS) onto gocql.ClusterConfig the
// way the teacher's connect paths build a client from a pb.Endpoint.
package dbsession

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/duocluster/sidecar/config"
)

const maxConnectAttempts = 3

// Connect builds a ClusterConfig from ep/driver and opens a Session,
// retrying up to maxConnectAttempts times. The last error is returned if
// every attempt fails.
func Connect(ep config.DbEndpoint, driver config.DriverConfig) (*gocql.Session, error) {
	var cluster = newClusterConfig(ep, driver)

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		sess, err := cluster.CreateSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		log.WithFields(log.Fields{
			"host":    ep.Host,
			"attempt": attempt,
		}).WithError(err).Warn("db connect attempt failed")
	}
	return nil, errors.Wrapf(lastErr, "connect to %s:%d after %d attempts", ep.Host, ep.Port, maxConnectAttempts)
}

func newClusterConfig(ep config.DbEndpoint, driver config.DriverConfig) *gocql.ClusterConfig {
	var cluster = gocql.NewCluster(ep.Host)
	cluster.Port = int(ep.Port)
	cluster.Keyspace = ""
	cluster.Consistency = gocql.LocalQuorum
	cluster.Authenticator = gocql.PasswordAuthenticator{
		Username: ep.Username,
		Password: ep.Password,
	}

	if driver.RequestTimeoutMs > 0 {
		cluster.Timeout = time.Duration(driver.RequestTimeoutMs) * time.Millisecond
	}
	if driver.ConnectionTimeoutMs > 0 {
		cluster.ConnectTimeout = time.Duration(driver.ConnectionTimeoutMs) * time.Millisecond
	}
	if driver.TCPKeepaliveSecs > 0 {
		cluster.SocketKeepalive = time.Duration(driver.TCPKeepaliveSecs) * time.Second
	}
	if driver.DefaultPageSize > 0 {
		cluster.PageSize = int(driver.DefaultPageSize)
	}

	cluster.Compressor = compressorFor(driver.Compression)

	if ep.UseTLS {
		cluster.SslOpts = tlsOptsFor(ep)
	}

	return cluster
}

// compressorFor maps the config's compression name onto a gocql
// Compressor. gocql ships no first-party lz4 implementation, so "lz4"
// falls back to snappy with a logged warning rather than failing outright.
func compressorFor(name string) gocql.Compressor {
	switch name {
	case "snappy":
		return &gocql.SnappyCompressor{}
	case "lz4":
		log.Warn("lz4 compression requested but not available in this build, falling back to snappy")
		return &gocql.SnappyCompressor{}
	case "none", "":
		return nil
	default:
		log.WithField("compression", name).Warn("unknown compression mode, disabling compression")
		return nil
	}
}

func tlsOptsFor(ep config.DbEndpoint) *gocql.SslOptions {
	var opts = &gocql.SslOptions{
		Config: &tls.Config{
			InsecureSkipVerify: ep.TLSInsecureSkipVerify,
		},
	}
	if ep.TLSCAFile != "" {
		if pool, err := loadCAPool(ep.TLSCAFile); err != nil {
			log.WithError(err).WithField("tls_ca_file", ep.TLSCAFile).Warn("failed to load CA file, proceeding with system roots")
		} else {
			opts.Config.RootCAs = pool
		}
	}
	return opts
}

func loadCAPool(path string) (*x509.CertPool, error) {
	var pem, err = os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read CA file")
	}
	var pool = x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("no certificates parsed from CA file")
	}
	return pool, nil
}
