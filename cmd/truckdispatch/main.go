package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/engine"
	"github.com/Devloperheera/test.digittrasway-sub003/logging"
	"github.com/Devloperheera/test.digittrasway-sub003/messaging"
	"github.com/Devloperheera/test.digittrasway-sub003/protocol"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
	"github.com/Devloperheera/test.digittrasway-sub003/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "truckdispatch.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("truckdispatch", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	undoLog := logging.Install(logger)
	defer undoLog()
	sugar := logger.Sugar()

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("truckdispatch: database open (%s)", cfg.Database.Driver)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("truckdispatch: redis not available (%v), directory reads from SQL only", err)
	} else {
		log.Printf("truckdispatch: redis connected (%s)", cfg.Redis.Address)
	}
	cancel()
	defer redisClient.Close()

	// Vendor directory
	redisStore := directory.NewRedisStore(redisClient)
	dir := directory.NewManager(db, redisStore)
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := dir.SyncRedisFromSQL(syncCtx); err != nil {
		log.Printf("truckdispatch: redis sync from SQL: %v", err)
	}
	syncCancel()

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("truckdispatch: messaging connect failed (%v)", err)
	} else {
		log.Printf("truckdispatch: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Directory:  dir,
		Redis:      redisStore,
		MsgClient:  msgClient,
		LogFunc:    sugar.Infof,
	})
	eng.Start()
	defer eng.Stop()

	// Inbound protocol messages from requesters and vendors
	inbound := messaging.NewInboundHandler(db, dir, eng.Dispatcher(), cfg.Messaging.StationID, cfg.Messaging.RequesterTopic)
	ingestor := protocol.NewIngestor(inbound, protocol.CoreFilter)
	if err := msgClient.Subscribe(cfg.Messaging.BookingsTopic, func(_ string, data []byte) {
		ingestor.HandleRaw(data)
	}); err != nil {
		log.Printf("truckdispatch: protocol ingestor subscribe failed: %v", err)
	} else {
		log.Printf("truckdispatch: protocol ingestor listening on %s", cfg.Messaging.BookingsTopic)
	}

	// Outbox drainer (offers to vendors, updates to requesters)
	drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
	drainer.Start()
	defer drainer.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("truckdispatch: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("truckdispatch: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("truckdispatch: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("truckdispatch: stopped")
}
