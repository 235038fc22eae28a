package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	lr "github.com/authorizer-tech/link-registry/internal"
	"github.com/authorizer-tech/link-registry/internal/generator"
	"github.com/authorizer-tech/link-registry/internal/healthchecker"
	"github.com/authorizer-tech/link-registry/internal/registry"
	"github.com/authorizer-tech/link-registry/internal/store"
	"github.com/authorizer-tech/link-registry/internal/update-log/inmem"
	pgupdates "github.com/authorizer-tech/link-registry/internal/update-log/postgres"
)

const serviceName = "link-registry"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var serverID = flag.String("id", uuid.New().String(), "A unique identifier for the server. Defaults to a new uuid.")
var configPath = flag.String("config", "", "The path to the server config")
var render = flag.String("render", "", "Write the link configuration in the named dialect to stdout and exit")

func main() {

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load server config: %v", err)
	}

	if err := configureLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	fs := afero.NewOsFs()
	live := store.NewDir(fs, cfg.Registry.DataDir)
	loader := registry.NewLoader(
		store.NewDir(fs, cfg.Registry.ServersDir),
		live,
		registry.WithTTL(cfg.Registry.CacheTTL),
	)

	if *render != "" {
		if err := renderConfig(loader, live, *render); err != nil {
			log.Fatalf("Failed to render link configuration: %v", err)
		}
		return
	}

	log.Info("Starting link-registry")
	log.Infof("  Server ID: %s", *serverID)
	log.Infof("  Version: %s", version)
	log.Infof("  Date: %s", date)
	log.Infof("  Commit: %s", commit)
	log.Infof("  Go version: %s", runtime.Version())

	updates, closeUpdates, err := newUpdateLog(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize the '%s' update log: %v", cfg.UpdateLog.Backend, err)
	}

	registryOpts := []lr.LinkRegistryOption{
		lr.WithRegistry(loader),
		lr.WithCertificateStore(live),
		lr.WithUpdateLog(updates),
	}
	linkRegistry, err := lr.NewLinkRegistry(registryOpts...)
	if err != nil {
		log.Fatalf("Failed to initialize the link-registry: %v", err)
	}

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("Failed to start the TCP listener on '%v': %v", grpcAddr, err)
	}

	probe := func(ctx context.Context) error {
		_, err := loader.GetSnapshot(ctx, false)
		return err
	}

	server := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthchecker.NewHealthChecker(serviceName, probe))

	go func() {
		reflection.Register(server)

		log.Infof("Starting grpc server at '%v'..", grpcAddr)

		if err := server.Serve(listener); err != nil {
			log.Fatalf("Failed to start the gRPC server: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           linkRegistry.Handler(lr.WithClientCertHeader(cfg.HTTP.ClientCertHeader)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if cfg.HTTP.TLS.CertFile != "" {
			// peers are identified by their bootstrap certificate, not by a CA
			httpServer.TLSConfig = &tls.Config{
				ClientAuth: tls.RequestClientCert,
				MinVersion: tls.VersionTLS12,
			}

			log.Infof("Starting https server at '%v'..", httpServer.Addr)

			if err := httpServer.ListenAndServeTLS(cfg.HTTP.TLS.CertFile, cfg.HTTP.TLS.KeyFile); err != http.ErrServerClosed {
				log.Fatalf("Failed to start the HTTPS server: %v", err)
			}
			return
		}

		log.Infof("Starting http server at '%v'..", httpServer.Addr)

		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Failed to start the HTTP server: %v", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	<-exit

	log.Info("Shutting Down..")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("Failed to gracefully shutdown the HTTP server: %v", err)
	}

	server.GracefulStop()

	if err := closeUpdates(); err != nil {
		log.Errorf("Failed to gracefully close the update log: %v", err)
	}

	log.Info("Shutdown Complete. Goodbye 👋")
}

// renderConfig writes the current link configuration to stdout.
func renderConfig(loader *registry.Loader, live *store.Dir, dialect string) error {

	l, err := lr.NewLinkRegistry(
		lr.WithRegistry(loader),
		lr.WithCertificateStore(live),
	)
	if err != nil {
		return err
	}

	return l.PublishConfig(context.Background(), dialect, generator.NewWriterSink(os.Stdout))
}

// newUpdateLog returns the configured UpdateLog and a func releasing its
// resources.
func newUpdateLog(cfg Config) (lr.UpdateLog, func() error, error) {

	if cfg.UpdateLog.Backend != "postgres" {
		return inmem.NewUpdateLog(), func() error { return nil }, nil
	}

	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Postgres.Username,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open the Postgres database")
	}

	ping := func() error {
		if err := db.Ping(); err != nil {
			log.Warnf("Postgres is not reachable yet: %v", err)
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(ping, policy); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "failed to establish a connection to the Postgres database")
	}

	if err := migrateUp(db, cfg.Postgres.Migrations); err != nil {
		db.Close()
		return nil, nil, err
	}

	updates, err := pgupdates.NewUpdateLog(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return updates, db.Close, nil
}

func migrateUp(db *sql.DB, dir string) error {

	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to initialize the migration driver")
	}

	migrator, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to initialize the migrator")
	}

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to migrate up to the latest database schema")
	}

	return nil
}
