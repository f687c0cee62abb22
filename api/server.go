package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/fiberzerolog"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/pyneda/xsslab/pkg/analysis"
	"github.com/pyneda/xsslab/pkg/payloads"
)

const (
	defaultLimiterMax        = 60
	defaultLimiterExpiration = 30 * time.Second
)

// NewApp builds the fiber app with every route and middleware registered.
func NewApp() *fiber.App {
	apiLogger := log.With().Str("type", "api").Logger()
	library := payloads.NewLibrary()
	analyzer := analysis.NewPayloadAnalyzer()

	app := fiber.New(fiber.Config{
		ServerHeader: "xsslab",
		AppName:      "xsslab API",
		BodyLimit:    2 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(viper.GetStringSlice("api.cors.origins"), ","),
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(fiberzerolog.New(fiberzerolog.Config{
		Logger: &apiLogger,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("API Running")
	})

	maxRequests := viper.GetInt("api.limiter.max")
	if maxRequests <= 0 {
		maxRequests = defaultLimiterMax
	}
	expiration := viper.GetDuration("api.limiter.expiration")
	if expiration <= 0 {
		expiration = defaultLimiterExpiration
	}

	api := app.Group("/api/v1")
	api.Use(limiter.New(limiter.Config{
		Max:               maxRequests,
		Expiration:        expiration,
		LimiterMiddleware: limiter.SlidingWindow{},
	}))
	api.Use(func(c *fiber.Ctx) error {
		c.Locals("library", library)
		c.Locals("analyzer", analyzer)
		return c.Next()
	})

	api.Post("/analyze", AnalyzeHandler)
	api.Post("/analyze/batch", BatchAnalyzeHandler)
	api.Post("/polyglot", PolyglotHandler)
	api.Post("/csp", CSPHandler)
	api.Post("/fuzz/detect", FuzzDetectHandler)
	api.Post("/fuzz/generate", FuzzGenerateHandler)
	api.Get("/payloads", FindPayloads)
	api.Get("/payloads/stats", PayloadStats)
	api.Get("/encoders", ListEncoders)
	api.Post("/encode", EncodeHandler)
	api.Post("/dom", DOMHandler)
	api.Post("/prevention", PreventionHandler)

	return app
}

// StartAPI serves the API until ctx is cancelled.
func StartAPI(ctx context.Context) error {
	apiLogger := log.With().Str("type", "api").Logger()
	app := NewApp()

	go func() {
		<-ctx.Done()
		apiLogger.Info().Msg("Shutting down API")
		if err := app.Shutdown(); err != nil {
			apiLogger.Error().Err(err).Msg("Error shutting down API")
		}
	}()

	addr := fmt.Sprintf("%s:%d", viper.GetString("api.listen.host"), viper.GetInt("api.listen.port"))
	apiLogger.Info().Str("address", addr).Msg("Starting the API")
	return app.Listen(addr)
}
