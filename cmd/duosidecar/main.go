// Command duosidecar runs the dual-cluster replication and failover
// sidecar: it connects to the Active and Passive clusters, ensures their
// keyspaces exist, then serves the health HTTP surface while the
// SyncWorker ticks in the background.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/duocluster/sidecar/config"
	"github.com/duocluster/sidecar/dbclients"
	"github.com/duocluster/sidecar/failover"
	"github.com/duocluster/sidecar/httpapi"
	"github.com/duocluster/sidecar/outbox"
	"github.com/duocluster/sidecar/replication"
	"github.com/duocluster/sidecar/worker"
)

// reEnsureInterval is how often keyspace existence is re-checked after
// startup, warning-only so a transiently down cluster never kills the
// process.
const reEnsureInterval = 60 * time.Second

// Opts are the CLI overrides layered on top of config.Load(). All have
// env tags so they also work unflagged under a process supervisor.
var Opts = new(struct {
	BindAddr  string `long:"bind-addr" env:"DUOSIDECAR_BIND_ADDR" description:"override the HTTP health surface bind address"`
	OutboxDir string `long:"outbox-dir" env:"DUOSIDECAR_OUTBOX_DIR" default:"data/outbox" description:"directory holding the outbox log and cursor"`
})

func main() {
	var parser = flags.NewParser(Opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithError(err).Fatal("failed to parse flags")
	}

	var cfg = config.Load()
	if Opts.BindAddr != "" {
		cfg.Server.BindAddr = Opts.BindAddr
	}

	log.WithFields(log.Fields{
		"active_host":    cfg.Active.Host,
		"active_user":    cfg.Active.Username,
		"active_pass":    config.MaskSecret(cfg.Active.Password),
		"passive_host":   cfg.Passive.Host,
		"passive_user":   cfg.Passive.Username,
		"passive_pass":   config.MaskSecret(cfg.Passive.Password),
		"bind_addr":      cfg.Server.BindAddr,
		"outbox_dir":     Opts.OutboxDir,
		"worker_tick_ms": cfg.Worker.IntervalMs,
	}).Info("starting duosidecar")

	var clients, err = dbclients.InitClients(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to either cluster")
	}
	defer closeIfPresent(clients.Active)
	defer closeIfPresent(clients.Passive)

	if err := dbclients.EnsureKeyspaces(cfg, clients); err != nil {
		log.WithError(err).Fatal("failed to ensure keyspaces at startup")
	}

	var ob *outbox.Outbox
	if ob, err = outbox.Open(Opts.OutboxDir, outbox.Options{Fsync: true}); err != nil {
		log.WithError(err).Fatal("failed to open outbox")
	}
	defer ob.Close()

	var repl = replication.New(ob, cfg.Active.Keyspace, cfg.Passive.Keyspace)
	var fo = failover.NewManager(failover.DefaultProbe)
	var w = worker.New(repl, fo)
	if cfg.Worker.IntervalMs > 0 {
		w.IntervalMs = cfg.Worker.IntervalMs
	}
	if cfg.Worker.MaxReplayPerTick > 0 {
		w.MaxReplayPerTick = cfg.Worker.MaxReplayPerTick
	}
	if cfg.Worker.DriftRecThreshold > 0 {
		w.DriftRecThreshold = cfg.Worker.DriftRecThreshold
	}
	if cfg.Worker.DriftBytesThreshold > 0 {
		w.DriftBytesThreshold = int64(cfg.Worker.DriftBytesThreshold)
	}

	var ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mux = httpapi.NewMux(clients, fo, repl, w.DriftRecThreshold, w.DriftBytesThreshold)
	var server = &http.Server{Addr: cfg.Server.BindAddr, Handler: mux}

	var group, groupCtx = errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithField("addr", cfg.Server.BindAddr).Info("serving health surface")
		var serveErr = server.ListenAndServe()
		if serveErr != nil && serveErr != http.ErrServerClosed {
			return serveErr
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		var shutdownCtx, shutdownCancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		return w.RunLoop(groupCtx, clients)
	})

	group.Go(func() error {
		return runReEnsureLoop(groupCtx, cfg, clients)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.WithError(err).Warn("duosidecar exiting with error")
	}
	log.Info("duosidecar stopped")
}

// closeIfPresent closes sess if the endpoint connected successfully;
// InitClients leaves either side nil when that cluster was unreachable
// at startup.
func closeIfPresent(sess dbclients.Session) {
	if sess != nil {
		sess.Close()
	}
}

// runReEnsureLoop periodically re-checks keyspace existence, logging a
// warning rather than exiting on failure -- unlike the startup check,
// a cluster being briefly unreachable after the process is already
// serving traffic should never bring it down.
func runReEnsureLoop(ctx context.Context, cfg config.AppConfig, clients *dbclients.DbClients) error {
	var ticker = time.NewTicker(reEnsureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			dbclients.EnsureKeyspacesPeriodic(cfg, clients)
		}
	}
}
