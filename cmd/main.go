package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"Matchmaking/config"
	"Matchmaking/internal/health"
	"Matchmaking/internal/matchmaker"
	"Matchmaking/internal/middleware"
	"Matchmaking/internal/notifier"
	"Matchmaking/internal/room"
	"Matchmaking/internal/scheduler"
	"Matchmaking/internal/storage"
	"Matchmaking/internal/utils"
	"Matchmaking/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("config", "err", err)
	}
	logger := utils.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", "err", err)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	policy := cfg.Policy()
	hub := websocket.NewHub(logger)
	eg, ctx := errgroup.WithContext(ctx)

	//-------------------------------------------------------
	// 1. 存储（redis | memory）
	//-------------------------------------------------------
	var (
		queue     matchmaker.QueueRepo
		roomRepo  room.Repo
		publisher matchmaker.Publisher
		locker    scheduler.Locker
		ping      health.Pinger
	)
	switch cfg.Storage.Driver {
	case "redis":
		opts := storage.RedisOptions{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		}
		rdb, err := storage.NewRedis(ctx, opts)
		if err != nil {
			return err
		}
		defer rdb.Close()
		// 订阅需要独立连接
		sub, err := storage.NewRedis(ctx, opts)
		if err != nil {
			return err
		}
		defer sub.Close()
		logger.Info("redis connected", "addr", cfg.Redis.Addr)

		queue = matchmaker.NewRedisRepo(rdb, cfg.Keys.QueuePrefix, cfg.Matchmaking.QueueExpiry, logger)
		roomRepo = room.NewRedisRepo(rdb, room.Keys{
			RoomPrefix:       cfg.Keys.RoomPrefix,
			RoomIndex:        cfg.Keys.RoomIndex,
			PlayerRoomPrefix: cfg.Keys.PlayerRoomPrefix,
		}, cfg.Matchmaking.RoomExpiry)
		publisher = notifier.NewRedisPublisher(rdb, cfg.Channels.RoomNotifications, logger)
		locker = scheduler.NewRedisLocker(rdb, cfg.Keys.LockPrefix, cfg.Matchmaking.LockTTL)
		ping = func(ctx context.Context) error { return storage.Ping(ctx, rdb) }

		subscriber := notifier.NewSubscriber(sub, cfg.Channels.RoomNotifications, hub, logger)
		eg.Go(func() error { return subscriber.Run(ctx) })

	case "memory":
		logger.Warn("memory storage: state is lost on restart and not shared between instances")
		queue = matchmaker.NewMemoryRepo(cfg.Matchmaking.QueueExpiry, time.Now)
		roomRepo = room.NewMemoryRepo(cfg.Matchmaking.RoomExpiry, time.Now)
		publisher = notifier.NewLocalPublisher(hub)
		locker = scheduler.NewMemoryLocker(cfg.Matchmaking.LockTTL)
	}

	//-------------------------------------------------------
	// 2. 服务
	//-------------------------------------------------------
	rooms := room.NewService(roomRepo, policy, logger)
	svc := matchmaker.NewService(queue, rooms, publisher, logger)

	playerLimiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, cfg.RateLimit.Idle)
	ipLimiter := middleware.NewRateLimiter(cfg.RateLimit.GeneralPerMinute, cfg.RateLimit.GeneralBurst, cfg.RateLimit.Idle)
	websocket.NewGateway(hub, svc, rooms, playerLimiter, logger)

	//-------------------------------------------------------
	// 3. 调度器
	//-------------------------------------------------------
	matchSched := scheduler.NewMatchScheduler(svc, locker, cfg.Matchmaking.MatchInterval, cfg.Matchmaking.StatsInterval, logger)
	cleanupSched := scheduler.NewCleanupScheduler(queue, rooms, locker, scheduler.CleanupConfig{
		Interval:     cfg.Cleanup.Interval,
		QueueExpiry:  cfg.Matchmaking.QueueExpiry,
		RoomExpiry:   cfg.Matchmaking.RoomExpiry,
		AbandonAfter: cfg.Cleanup.AbandonAfter,
		ScanLimit:    cfg.Cleanup.ScanLimit,
	}, logger)

	//-------------------------------------------------------
	// 4. HTTP + WebSocket
	//-------------------------------------------------------
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.Server.CorsOrigins)))

	health.NewHandler(ping, matchSched, svc, logger).Register(r)
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": health.ServiceName, "version": health.Version, "status": "running"})
	})
	r.GET("/ws", middleware.PlayerIdentity(cfg.JWT.Secret, logger), websocket.ServeWS(hub))

	api := r.Group(cfg.Server.APIPrefix, middleware.LimitByIP(ipLimiter, logger))
	matchmaker.NewHandler(svc, rooms, playerLimiter, logger).Register(api)

	srv := &http.Server{Addr: cfg.Server.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	//-------------------------------------------------------
	// 5. 启动
	//-------------------------------------------------------
	eg.Go(func() error {
		hub.Run()
		return nil
	})
	eg.Go(func() error {
		matchSched.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		cleanupSched.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		playerLimiter.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		ipLimiter.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		logger.Info("server running", "addr", srv.Addr, "api", cfg.Server.APIPrefix, "driver", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Player-Id"},
		AllowCredentials: true,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
