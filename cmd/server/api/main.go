package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/api"
	authproviders "github.com/myhuemungusD/skatehubba-sub002/pkg/auth/providers"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/config"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/lobby"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/matches"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/notify"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/queue"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/remote"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/uploads"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/version"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/workers"
	"github.com/redis/go-redis/v9"
)

func main() {
	port := flag.Int("port", 9090, "port to listen on")
	allowOrigin := flag.String("allow-origin", "*", "origin allowed to call the API and open watch sockets")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, parsedLogLevel)
	log.SetDefaultLogger(logger)
	defer logger.Sync()
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting api server version %s", version.Get())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if cfg.FirebaseProjectID == "" {
		panic(config.EnvPrefix + "FIREBASE_PROJECT_ID environment variable must be set")
	}
	authProvider, err := authproviders.NewFirebaseAuthProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to create Firebase auth provider: %v", err))
	}

	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse connection string: %v", err))
	}

	broker := newBroker(ctx, cfg, u)
	defer broker.Close()
	repoOpts := repositories.Options{
		OnCommit: func(ctx context.Context, changes []repositories.Change) {
			if err := broker.Publish(ctx, changes); err != nil {
				log.Warn("Failed to publish %d changes: %v", len(changes), err)
			}
		},
	}

	var repository repositories.Repository
	switch u.Scheme {
	case "memory":
		log.Warn("Using the in-memory repository, nothing will be persisted")
		repository = repositories.NewMemoryRepository(repoOpts)
	case "sqlite":
		repository, err = repositories.NewSQLiteRepository(ctx, u.Host+u.Path, filepath.Join(cfg.MigrationsDir, "sqlite"), repoOpts)
		if err != nil {
			panic(fmt.Sprintf("Failed to create SQLite repository: %v", err))
		}
	case "postgres", "postgresql":
		repository, err = repositories.NewPostgresRepository(ctx, u.String(), filepath.Join(cfg.MigrationsDir, "postgres"), repoOpts)
		if err != nil {
			panic(fmt.Sprintf("Failed to create Postgres repository: %v", err))
		}
	case "redis", "rediss":
		repository, err = repositories.NewRedisRepository(ctx, u.String(), repoOpts)
		if err != nil {
			panic(fmt.Sprintf("Failed to create Redis repository: %v", err))
		}
	default:
		panic(fmt.Sprintf("Unknown database type %s", u.Scheme))
	}
	defer repository.Close(context.Background())

	var notifier notify.Notifier = notify.LogNotifier{}
	fcm, err := notify.NewFCMNotifier(ctx, authProvider.App(), repository)
	if err != nil {
		log.Warn("Push notifications disabled: %v", err)
	} else {
		notifier = fcm
	}

	var store uploads.BlobStore
	if cfg.S3.Bucket != "" {
		store, err = uploads.NewS3Store(ctx, uploads.NewS3StoreOptions{
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			CDNBaseURL:      cfg.S3.CDNBaseURL,
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create S3 store: %v", err))
		}
	} else {
		log.Warn("%sS3_BUCKET not set, videos are kept in memory", config.EnvPrefix)
		store = uploads.NewMemoryStore(fmt.Sprintf("http://localhost:%d/videos", *port))
	}

	rules := game.Rules{SwapTurnOnLand: cfg.SwapTurnOnLand}
	jobs := queue.NewInMemoryQueue[uploads.Job](cfg.UploadQueueSize)

	matchService := matches.NewService(matches.NewServiceOptions{
		Repository: repository,
		Broker:     broker,
		Rules:      rules,
	})
	lobbyService := lobby.NewService(lobby.NewServiceOptions{
		Repository: repository,
		Broker:     broker,
		Matches:    matchService,
	})
	remoteService := remote.NewService(remote.NewServiceOptions{
		Repository:       repository,
		Broker:           broker,
		Rules:            rules,
		Notifier:         notifier,
		Jobs:             jobs,
		SpoolDir:         cfg.SpoolDir,
		MaxVideoBytes:    cfg.MaxVideoBytes,
		MaxVideoDuration: cfg.MaxVideoDuration,
	})

	uploadWorker := workers.NewUploadWorker(workers.NewUploadWorkerOptions{
		Jobs:        jobs,
		Store:       store,
		Videos:      remoteService,
		Concurrency: cfg.UploadConcurrency,
	})
	uploadsDone := make(chan struct{})
	go func() {
		defer close(uploadsDone)
		uploadWorker.Start(ctx)
	}()

	sweepWorker := workers.NewSweepWorker(workers.NewSweepWorkerOptions{
		Lobby:        lobbyService,
		Uploads:      remoteService,
		Interval:     cfg.SweepInterval,
		QueueTTL:     cfg.QueueTTL,
		ChallengeTTL: cfg.ChallengeTTL,
		UploadTTL:    cfg.UploadTTL,
	})
	go func() {
		if err := sweepWorker.Start(ctx); err != nil {
			log.Error("Sweep worker stopped: %v", err)
		}
	}()

	apiServerOpts := api.NewAPIServerOptions{
		Port:         *port,
		AllowOrigin:  *allowOrigin,
		AuthProvider: authProvider,
		Repository:   repository,
		Lobby:        lobbyService,
		Matches:      matchService,
		Remote:       remoteService,
	}
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: cfg.TLSCertFile,
			KeyFile:  cfg.TLSKeyFile,
		}
	}
	server := api.NewAPIServer(apiServerOpts)
	go server.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Info("Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
	cancel()
	select {
	case <-uploadsDone:
	case <-stopCtx.Done():
		log.Warn("Timed out waiting for uploads to stop")
	}
}

// newBroker picks the Redis broker when instances share a Redis, and the in-process one otherwise.
func newBroker(ctx context.Context, cfg *config.Config, db *url.URL) watch.Broker {
	redisURL := cfg.RedisURL
	if redisURL == "" && (db.Scheme == "redis" || db.Scheme == "rediss") {
		redisURL = db.String()
	}
	if redisURL == "" {
		return watch.NewMemoryBroker()
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse redis url: %v", err))
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to redis: %v", err))
	}
	log.Info("Using the Redis watch broker")
	return watch.NewRedisBroker(client)
}
