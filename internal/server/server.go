package server

import (
	"context"
	"errors"

	"github.com/AyushMusale/TripSense/internal/analytics"
	"github.com/AyushMusale/TripSense/internal/auth"
	"github.com/AyushMusale/TripSense/internal/carbon"
	"github.com/AyushMusale/TripSense/internal/config"
	"github.com/AyushMusale/TripSense/internal/logging"
	"github.com/AyushMusale/TripSense/internal/storage"
	"github.com/AyushMusale/TripSense/internal/stream"
	"github.com/AyushMusale/TripSense/internal/tracking"
	"github.com/AyushMusale/TripSense/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Logger zerolog.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, logger zerolog.Logger) (*Server, error) {
	factors, err := carbon.LoadFactors(cfg.CarbonFactorsFile)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Use(logging.Middleware(logger))
	app.Use(recover.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, component(logger, "stream")),
		Logger: logger,
	}

	registerRoutes(s, carbon.NewCalculator(factors))
	return s, nil
}

// StartStream relays live track updates between instances until ctx ends.
func (s *Server) StartStream(ctx context.Context) {
	go func() {
		if err := s.Stream.Run(ctx); err != nil {
			s.Logger.Error().Err(err).Msg("stream hub stopped")
		}
	}()
}

func registerRoutes(s *Server, calc *carbon.Calculator) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tripSvc := trip.NewService(s.DB, calc, component(s.Logger, "trip"))
	analyticsSvc := analytics.NewService(s.DB, tripSvc, calc, s.Redis, s.Cfg.DashboardCacheTTL, component(s.Logger, "analytics"))
	tripSvc.OnCompleted(analyticsSvc.RegenerateDaily)
	tripSvc.OnChanged(analyticsSvc.InvalidateDashboard)
	trackingSvc := tracking.NewService(s.DB, s.Stream, component(s.Logger, "tracking"))

	trips := s.App.Group("/trips")
	limiter := tracking.NewRateLimiter(s.Redis, s.Cfg.RateLimitRPS, s.Cfg.RateLimitBurst)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB), jwtMiddleware)
	trip.RegisterRoutes(trips, tripSvc, jwtMiddleware)
	tracking.RegisterRoutes(trips, trackingSvc, jwtMiddleware, limiter)
	analytics.RegisterRoutes(s.App.Group("/analytics"), analyticsSvc, jwtMiddleware)
	storage.RegisterRoutes(s.App.Group("/storage"), storage.NewService(s.DB, s.Cfg.StorageBaseURL), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware, trackingSvc)
}

// errorHandler renders every error as JSON. Server errors keep their details
// in the request log only.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
