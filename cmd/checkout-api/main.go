package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/petmarket/internal/cart/cache"
	cartpoller "github.com/fjod/petmarket/internal/cart/poller"
	cartrepo "github.com/fjod/petmarket/internal/cart/repository"
	cartservice "github.com/fjod/petmarket/internal/cart/service"
	catalog "github.com/fjod/petmarket/internal/catalog/repository"
	"github.com/fjod/petmarket/internal/checkout"
	"github.com/fjod/petmarket/internal/config"
	healthgrpc "github.com/fjod/petmarket/internal/grpc"
	h "github.com/fjod/petmarket/internal/http"
	"github.com/fjod/petmarket/internal/identity"
	"github.com/fjod/petmarket/internal/inventory"
	ordersrepo "github.com/fjod/petmarket/internal/orders/repository"
	orderservice "github.com/fjod/petmarket/internal/orders/service"
	"github.com/fjod/petmarket/internal/publisher"
	"github.com/fjod/petmarket/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("checkout-api starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog and stock
	products, err := catalog.NewSQLiteRepository(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog database")
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("failed to run catalog migrations")
	}

	// Account carts
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to disconnect MongoDB")
		}
	}()
	accountCarts := cartrepo.NewMongoRepository(mongoDB)
	if err := accountCarts.CreateIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create cart indexes")
	}
	log.Info().Str("uri", cfg.MongoURI).Msg("connected to MongoDB")

	// Guest carts and cart cache
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	guestCarts := cartrepo.NewRedisSessionRepository(redisClient, cfg.GuestCartTTL)

	// Orders
	orders, err := ordersrepo.NewRepository(&cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to orders database")
	}
	defer orders.Close()
	if err := orders.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("failed to run orders migrations")
	}
	log.Info().Msg("database migrations completed")

	ledger := inventory.NewLedger(products)
	carts := cartservice.NewCartService(accountCarts, guestCarts, cache.NewRedisCache(redisClient), products, cfg.Pricing)
	checkoutService := checkout.NewCheckoutService(carts, products, ledger, orders, cfg.Pricing)
	orderService := orderservice.NewOrderService(orders, ledger)

	router := h.NewRouter(h.Services{
		Carts:    carts,
		Checkout: checkoutService,
		Orders:   orderService,
		Products: products,
	}, h.RouterConfig{
		Tokens:         identity.NewTokens(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		SessionTTL:     cfg.GuestCartTTL,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	healthServer := healthgrpc.NewServer()

	poller := publisher.NewOutboxPoller(orders, publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...))
	cartCleanup := cartpoller.NewPoller(cartpoller.NewKafkaReader(cfg.KafkaTopic, cfg.KafkaBrokers...), carts)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		log.Info().Str("port", cfg.HTTPPort).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := healthServer.Serve(grpcLis); err != nil {
			log.Error().Err(err).Msg("grpc server error")
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		cartCleanup.Run(ctx)
	}()
	healthServer.SetServing(true)

	<-ctx.Done()
	log.Info().Msg("shutting down checkout-api...")
	healthServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	healthServer.GracefulStop()
	wg.Wait()

	if err := poller.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka writer")
	}
	if err := cartCleanup.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka reader")
	}
	log.Info().Msg("checkout-api stopped")
}
