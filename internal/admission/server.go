// Package admission is the HTTP-facing layer of spec §4.8: it validates
// requests, forwards them to the Channel Collection, and exposes ping/
// send/stat, plus the additive websocket stream of SPEC_FULL §2 item 17.
//
// Server construction follows the teacher's app/host/http.go: a
// recover+compact-request-log middleware pair ahead of route registration,
// fiber.Config timeouts sized the same way.
package admission

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/msgproxy/vchannel/internal/apperrors"
	appstate "github.com/msgproxy/vchannel/internal/app"
)

// NewServer builds the fiber.App exposing the admission contract.
func NewServer(a *appstate.Application, log *slog.Logger) *fiber.App {
	if log == nil {
		log = slog.Default()
	}

	server := &server{app: a, log: log}

	fa := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          server.handleError,
	})

	fa.Use(recover.New())
	fa.Use(logger.New(logger.Config{
		Format: "${time} ${method} ${path} ${status} ${latency}\n",
	}))
	fa.Use(func(c *fiber.Ctx) error {
		a.Health.RecordActivity()
		return c.Next()
	})

	fa.Get("/api/ping", server.ping)
	fa.Post("/api/send/:channel", server.maintenanceGuard, server.send)
	fa.Get("/api/stat/:channel", server.maintenanceGuard, server.stat)
	fa.Get("/api/stream", server.maintenanceGuard, server.stream)

	return server.fiberApp(fa)
}

type server struct {
	app *appstate.Application
	log *slog.Logger
}

func (s *server) fiberApp(fa *fiber.App) *fiber.App { return fa }

// maintenanceGuard answers 503 for every endpoint except /api/ping while
// the application is in maintenance, per spec §4.8.
func (s *server) maintenanceGuard(c *fiber.Ctx) error {
	if s.app.Maintenance() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "error",
			"error":  "Service is temporary unawailable",
		})
	}
	return c.Next()
}

// handleError is the single error-handling middleware of spec §7: it maps
// apperrors.Kind to an HTTP status and a {status:"error", error} body,
// letting fiber's own HTTP errors propagate unchanged.
func (s *server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fiber.DefaultErrorHandler(c, fe)
	}

	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return c.Status(statusForKind(ae.Kind)).JSON(fiber.Map{"status": "error", "error": ae.Msg})
	}

	s.log.Error("unhandled error in admission layer", "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error", "error": err.Error()})
}

func statusForKind(k apperrors.Kind) int {
	switch k {
	case apperrors.KindRequestParameter:
		return fiber.StatusUnprocessableEntity
	case apperrors.KindTemporaryUnavailable:
		return fiber.StatusServiceUnavailable
	case apperrors.KindRequestExecution:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}
