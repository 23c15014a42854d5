package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/planhub/messaging/internal/api"
	"github.com/planhub/messaging/internal/auth"
	"github.com/planhub/messaging/internal/chat"
	"github.com/planhub/messaging/internal/config"
	"github.com/planhub/messaging/internal/database"
	"github.com/planhub/messaging/internal/notifier"
	"github.com/planhub/messaging/internal/server"
	"github.com/planhub/messaging/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr            string
	dsn             string
	signingKey      string
	allowedOrigins  stringSliceFlag
	vapidPublicKey  string
	vapidPrivateKey string
	vapidSubject    string
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("MESSAGING_SIGNING_KEY"), "base64 encoded token signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&vapidPublicKey, "vapid-public-key", os.Getenv("MESSAGING_VAPID_PUBLIC_KEY"), "VAPID public key for web push")
	flag.StringVar(&vapidPrivateKey, "vapid-private-key", os.Getenv("MESSAGING_VAPID_PRIVATE_KEY"), "VAPID private key for web push")
	flag.StringVar(&vapidSubject, "vapid-subject", "mailto:ops@planhub.dev", "VAPID subject contact")
	flag.Parse()

	logger := log.New(os.Stderr, "[planhub-messaging] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, vapidPublicKey, vapidPrivateKey, vapidSubject)
	if err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	// Schema is declared once in versioned migrations and applied before
	// anything serves.
	res, err := repo.Migrate()
	if err != nil {
		logger.Fatal("migrate:", err)
	}
	if res.Changed {
		logger.Printf("migrated schema to version %d", res.Version)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux, logger)

	gateway := server.NewMessagingServer(logger, statsUpdater)

	chatSvc := chat.NewService(logger, repo, gateway, statsUpdater)

	var push notifier.PushSender
	if cfg.PushEnabled() {
		push = notifier.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	} else {
		logger.Println("VAPID keys not configured, web push disabled")
	}
	notifierSvc := notifier.NewNotifier(logger, repo, gateway, push, statsUpdater)

	verifier := auth.NewJWTVerifier(cfg.SigningKey)

	srv := api.NewApp(mux, logger, gateway, chatSvc, notifierSvc, verifier, repo, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go gateway.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down messaging gateway...")
	gateway.Shutdown()

	logger.Println("shutdown complete")
}
