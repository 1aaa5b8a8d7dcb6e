package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tradecore/internal/config"
	cronrunner "tradecore/internal/cron"
	"tradecore/internal/db"
	"tradecore/internal/exchange"
	"tradecore/internal/exchange/hyperliquid"
	"tradecore/internal/gateway"
	"tradecore/internal/handler"
	"tradecore/internal/logger"
	"tradecore/internal/observer"
	"tradecore/internal/pricefeed"
	"tradecore/internal/reconcile"
	gormrepository "tradecore/internal/repository/gorm"

	_ "tradecore/docs"
)

func main() {
	cfgPath := os.Getenv("TC_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TC_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		DB:          cfg.Redis.DB,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	defer redisClient.Close()

	store := gormrepository.New(dbConn.Gorm)
	feed := &pricefeed.Feed{
		Redis:            redisClient,
		Repo:             store,
		Logger:           log,
		PriceStream:      cfg.Redis.PriceStream,
		BalanceStream:    cfg.Redis.BalanceStream,
		ScanCount:        cfg.Redis.ScanCount,
		BalanceStaleness: cfg.Reconciliation.BalanceStaleness,
	}

	manager := exchange.NewManager(cfg.Exchange, func(name string) (exchange.Client, error) {
		if name != cfg.Exchange.Name {
			return nil, &exchange.ConfigError{Exchange: name}
		}
		return hyperliquid.New(cfg.Exchange, log)
	}, log)

	observerAccount := cfg.Observer.Account
	if observerAccount == "" {
		observerAccount = cfg.Exchange.WalletAddress
	}
	observerClient := observer.NewClient(cfg.Observer.URLs, observerAccount,
		cfg.Observer.Timeout, cfg.Observer.MaxHeartbeatAge, log)

	gatewaySvc := gateway.NewService(store, manager, feed, cfg.Gateway, cfg.Exchange.Name, log)
	sizer := &reconcile.Sizer{Repo: store, Config: cfg.Kelly, Logger: log}
	engine := reconcile.NewEngine(store, feed, observerClient, gatewaySvc, sizer, cfg.Reconciliation, log)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	orderHandler := &handler.OrderHandler{Repo: store, Gateway: gatewaySvc}
	orderHandler.Register(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(log, ctx)
	if cfg.Reconciliation.Enabled {
		_, err := cronRunner.Add(cfg.Reconciliation.Schedule, func(ctx context.Context) {
			if err := engine.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("reconciliation cycle failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("cron register reconciliation failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	recorder := &pricefeed.BalanceRecorder{
		Feed:     feed,
		Repo:     store,
		Logger:   log,
		Interval: time.Minute,
	}
	go func() {
		if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("balance recorder stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 2)

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
