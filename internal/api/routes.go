package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/api/handlers"
	"github.com/yourusername/craft-server-manager/internal/api/middleware"
	"github.com/yourusername/craft-server-manager/internal/auth"
	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/metrics"
	"github.com/yourusername/craft-server-manager/internal/scheduler"
	"github.com/yourusername/craft-server-manager/internal/server"
	"github.com/yourusername/craft-server-manager/internal/websocket"
)

// SetupRouter configures and returns the HTTP router. backups may be nil
// when backups are disabled. The returned func waits for background
// lifecycle and backup requests.
func SetupRouter(
	cfg *config.Config,
	supervisor handlers.Supervisor,
	session *console.Session,
	hub *websocket.Hub,
	recorder *metrics.Recorder,
	activity *logging.ActivityLogger,
	schedules *config.ScheduleManager,
	sched *scheduler.Scheduler,
	backups *backup.Manager,
) (*gin.Engine, func()) {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Audit(activity))
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.ContentSecurityPolicy(cfg.Logging.Level == "debug"))

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.AccessTokenDuration, 0))
	authenticator := auth.NewAuthenticator(cfg.Auth)
	log.Printf("[Auth] %d accounts configured", authenticator.Len())

	launch := server.NewJavaLaunchSpec(cfg.Game.JavaPath, cfg.Game.JVMArgs, cfg.Game.Jar, cfg.Game.ServerArgs, cfg.Game.WorkingDir)
	stopTimeout := config.Duration(cfg.Game.StopTimeout, server.DefaultStopTimeout)

	authHandler := handlers.NewAuthHandler(jwtManager, authenticator, activity)
	serverHandler := handlers.NewServerHandler(supervisor, session, activity, launch, stopTimeout)
	consoleHandler := handlers.NewConsoleHandler(session, hub, cfg.Security.CORS.AllowedOrigins)
	metricsHandler := handlers.NewMetricsHandler(recorder, cfg.Game.WorkingDir)
	activityHandler := handlers.NewActivityHandler(activity)
	scheduleHandler := handlers.NewScheduleHandler(schedules, sched)
	var backupHandler *handlers.BackupHandler
	if backups != nil {
		backupHandler = handlers.NewBackupHandler(backups, supervisor)
	}

	// Public routes
	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(jwtManager, authenticator))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		srv := protected.Group("/server")
		{
			srv.GET("/status", middleware.RequirePermission(auth.PermServerView), serverHandler.GetStatus)
			srv.POST("/start", middleware.RequirePermission(auth.PermServerControl), serverHandler.StartServer)
			srv.POST("/stop", middleware.RequirePermission(auth.PermServerControl), serverHandler.StopServer)
			srv.POST("/restart", middleware.RequirePermission(auth.PermServerControl), serverHandler.RestartServer)
			srv.GET("/java", middleware.RequirePermission(auth.PermServerControl), serverHandler.GetJavaInstallations)
			srv.POST("/command", middleware.RequirePermission(auth.PermConsoleCommand), serverHandler.ExecuteCommand)
			srv.GET("/players", middleware.RequirePermission(auth.PermServerView), serverHandler.GetPlayers)
			srv.GET("/players/sessions", middleware.RequirePermission(auth.PermServerView), serverHandler.GetPlayerSessions)
			srv.POST("/players/:name/:action", middleware.RequirePermission(auth.PermPlayersManage), serverHandler.PlayerAction)
		}

		con := protected.Group("/console")
		{
			con.GET("/output", middleware.RequirePermission(auth.PermServerView), consoleHandler.GetOutput)
			con.GET("/history", middleware.RequirePermission(auth.PermServerView), consoleHandler.GetCommandHistory)
			con.GET("/history/search", middleware.RequirePermission(auth.PermServerView), consoleHandler.SearchCommandHistory)
			con.GET("/autocomplete", middleware.RequirePermission(auth.PermConsoleCommand), consoleHandler.GetAutocomplete)
		}

		met := protected.Group("/metrics")
		{
			met.GET("", middleware.RequirePermission(auth.PermServerView), metricsHandler.GetMetrics)
			met.GET("/latest", middleware.RequirePermission(auth.PermServerView), metricsHandler.GetLatestMetrics)
			met.GET("/summary", middleware.RequirePermission(auth.PermServerView), metricsHandler.GetSummary)
			met.GET("/host", middleware.RequirePermission(auth.PermServerView), metricsHandler.GetHost)
		}

		act := protected.Group("/activity")
		{
			act.GET("", middleware.RequirePermission(auth.PermActivityView), activityHandler.ListActivities)
			act.GET("/stats", middleware.RequirePermission(auth.PermActivityView), activityHandler.GetStats)
		}

		sch := protected.Group("/schedules")
		{
			sch.GET("", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.ListSchedules)
			sch.POST("", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.CreateSchedule)
			sch.POST("/reload", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.ReloadSchedules)
			sch.GET("/:id", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.GetSchedule)
			sch.PUT("/:id", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.UpdateSchedule)
			sch.DELETE("/:id", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.DeleteSchedule)
			sch.POST("/:id/run", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.RunSchedule)
		}

		if backupHandler != nil {
			bak := protected.Group("/backups")
			bak.Use(middleware.RequirePermission(auth.PermBackupsManage))
			{
				bak.GET("", backupHandler.ListBackups)
				bak.POST("", backupHandler.CreateBackup)
				bak.GET("/:id", backupHandler.GetBackup)
				bak.DELETE("/:id", backupHandler.DeleteBackup)
				bak.POST("/:id/restore", backupHandler.RestoreBackup)
			}
		}

		// WebSocket route, command permission is checked per message
		protected.GET("/ws/console", middleware.RequirePermission(auth.PermServerView), consoleHandler.HandleConsoleWebSocket)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"server": supervisor.Status().State,
		})
	})

	shutdown := func() {
		log.Println("Waiting for background server operations to complete...")
		serverHandler.WaitForCompletion()
		if backupHandler != nil {
			backupHandler.WaitForCompletion()
		}
		log.Println("Background operations completed")
	}

	return router, shutdown
}
