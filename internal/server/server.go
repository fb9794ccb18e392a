package server

import (
	"os"
	"strings"
	"time"

	"anoa.com/playquestrewards/internal/config"
	"anoa.com/playquestrewards/internal/middleware"
	"anoa.com/playquestrewards/internal/scheduler"

	ledgerRepo "anoa.com/playquestrewards/internal/modules/ledger/repository"

	leaderboardHttp "anoa.com/playquestrewards/internal/modules/leaderboard/delivery/http"
	leaderboardService "anoa.com/playquestrewards/internal/modules/leaderboard/service"

	notiHttp "anoa.com/playquestrewards/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/playquestrewards/internal/modules/notification/repository"
	notifService "anoa.com/playquestrewards/internal/modules/notification/service"

	prizepoolHttp "anoa.com/playquestrewards/internal/modules/prizepool/delivery/http"
	prizepoolRepo "anoa.com/playquestrewards/internal/modules/prizepool/repository"
	prizepoolService "anoa.com/playquestrewards/internal/modules/prizepool/service"

	userHttp "anoa.com/playquestrewards/internal/modules/user/delivery/http"
	userRepo "anoa.com/playquestrewards/internal/modules/user/repository"
	userService "anoa.com/playquestrewards/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	scheduler   *scheduler.Scheduler
}

func NewServer(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Server {
	location := cfg.PoolLocation()

	// Repositories
	users := userRepo.NewUserRepository(db)
	ledger := ledgerRepo.NewLedgerRepository(db)
	pools := prizepoolRepo.NewPrizepoolRepository(db)
	increments := prizepoolRepo.NewIncrementLogRepository(db)
	distributions := prizepoolRepo.NewDistributionRepository(db)
	notifications := notifRepo.NewNotificationRepository(db)

	// Services
	authSvc := userService.NewAuthService(users)
	authHandler := userHttp.NewAuthHandler(authSvc)

	notificationSvc := notifService.NewNotificationService(notifications, redisClient)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient)

	incrementSvc := prizepoolService.NewIncrementService(pools, increments, location)
	conclusionSvc := prizepoolService.NewConclusionService(db, pools, increments, distributions, ledger, users, notificationSvc, location)
	poolQuerySvc := prizepoolService.NewPoolQueryService(pools, increments, distributions)
	prizepoolHandler := prizepoolHttp.NewPrizepoolHandler(incrementSvc, conclusionSvc, poolQuerySvc)

	cacheBuilderSvc := leaderboardService.NewCacheBuilderService(
		leaderboardService.NewRedisCacheWriter(redisClient),
		pools, increments, distributions, ledger, users,
		leaderboardService.CacheBuilderConfig{
			DailyTTL:  cfg.DailyLeaderboardTTL,
			WeeklyTTL: cfg.WeeklyLeaderboardTTL,
			Limit:     cfg.LeaderboardCacheLimit,
		},
		location,
	)
	leaderboardSvc := leaderboardService.NewLeaderboardService(
		leaderboardService.NewRedisCacheReader(redisClient), distributions, location)
	leaderboardHandler := leaderboardHttp.NewLeaderboardHandler(leaderboardSvc)

	// Scheduled jobs: conclusion (infrequent) and cache builder (frequent),
	// on independent schedules.
	sched := scheduler.NewScheduler()
	sched.Register(scheduler.NewConclusionJob(conclusionSvc, cfg.ConclusionCron))
	sched.Register(scheduler.NewLeaderboardCacheJob(cacheBuilderSvc, cfg.LeaderboardCacheCron))
	sched.Start()

	router := gin.Default()
	setupCORS(router)

	authMiddleware := middleware.NewAuthMiddleware(users)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.GET("/leaderboard", leaderboardHandler.GetLeaderboard)
		protected.GET("/prizepool", prizepoolHandler.GetCurrentPool)

		protected.POST("/increments/ad", prizepoolHandler.RecordAdView)
		protected.POST("/increments/purchase", prizepoolHandler.RecordPurchase)

		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)

		admin := protected.Group("/admin")
		admin.Use(authMiddleware.RequireAdmin())
		{
			admin.POST("/prizepool/conclude", prizepoolHandler.Conclude)
			admin.POST("/increments/:id/reverse", prizepoolHandler.ReverseIncrement)
		}
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		scheduler:   sched,
	}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) Shutdown() {
	s.scheduler.Stop()
}

func setupCORS(router *gin.Engine) {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
