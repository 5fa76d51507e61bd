// Package server exposes the clip transcription API, health and metrics,
// and a websocket feed of published records.
package server

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"hark/audio"
	"hark/log"
	"hark/metrics"
	"hark/sink"
	"hark/transcriber"
)

const (
	clipSampleRate = audio.DefaultSampleRate
	maxUpload      = 32 << 20
	shutdownGrace  = 5 * time.Second
)

type Config struct {
	Address  string
	Language string
	BeamSize int
	// Model is reported by /health.
	Model   string
	Timeout time.Duration
}

type Server struct {
	cfg Config
	tr  transcriber.Transcriber
	hub *sink.Hub
	m   *metrics.Metrics
	app *fiber.App
}

// New builds the app. hub and m may be nil, which disables /events and
// /metrics respectively.
func New(cfg Config, tr transcriber.Transcriber, hub *sink.Hub, m *metrics.Metrics) *Server {
	if cfg.Model == "" {
		cfg.Model = tr.Name()
	}
	s := &Server{cfg: cfg, tr: tr, hub: hub, m: m}
	if hub != nil && m != nil {
		m.WatchEvents(hub.Subscribers, hub.Dropped)
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             maxUpload,
		ErrorHandler:          errorHandler,
	})
	s.routes()
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() {
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	s.app.Use(cors.New())
	s.app.Use(s.observe)

	s.app.Post("/transcribe", s.handleTranscribe)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/last", s.handleLast)
	if s.m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.m.Handler()))
	}
	if s.hub != nil {
		s.app.Use("/events", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		s.app.Get("/events", websocket.New(s.handleEvents))
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Address)
	}()
	log.Logger().Info().Str("address", s.cfg.Address).Msg("server_listen")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if err := s.app.ShutdownWithTimeout(shutdownGrace); err != nil {
		return err
	}
	return <-errCh
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			c.Status(fiber.StatusInternalServerError)
		}
	}
	status := c.Response().StatusCode()
	route := c.Route().Path

	if s.m != nil && route != "/metrics" {
		s.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
	log.Logger().Debug().
		Str("request_id", requestID(c)).
		Str("method", c.Method()).
		Str("route", route).
		Int("status", status).
		Dur("took", time.Since(start)).
		Msg("http_request")
	return nil
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
		return id
	}
	return ""
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "model": s.cfg.Model})
}

func (s *Server) handleLast(c *fiber.Ctx) error {
	if s.hub == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	rec, ok := s.hub.Last()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(rec)
}

func clientError(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

// handleTranscribe transcribes one uploaded clip. It never touches the live
// pipeline; it only shares the transcriber.
func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return clientError(c, fiber.StatusBadRequest, "No audio file provided")
	}
	f, err := fh.Open()
	if err != nil {
		return clientError(c, fiber.StatusBadRequest, "unreadable upload: "+err.Error())
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return clientError(c, fiber.StatusBadRequest, "unreadable upload: "+err.Error())
	}

	ctx := c.UserContext()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var res *transcriber.Result
	switch {
	case audio.IsWAV(data):
		clip, err := audio.DecodeWAVBytes(data)
		if err != nil {
			return clientError(c, fiber.StatusUnsupportedMediaType, err.Error())
		}
		samples, err := clip.Mono(clipSampleRate)
		if err != nil {
			return clientError(c, fiber.StatusUnsupportedMediaType, err.Error())
		}
		res, err = s.tr.Transcribe(ctx, transcriber.Request{
			Samples:    samples,
			SampleRate: clipSampleRate,
			Language:   s.cfg.Language,
			BeamSize:   s.cfg.BeamSize,
		})
		if err != nil {
			return s.transcribeFailed(c, err)
		}

	case transcriber.AcceptsFiles(s.tr):
		ft := s.tr.(transcriber.FileTranscriber)
		res, err = ft.TranscribeFile(ctx, transcriber.File{
			Data:        data,
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
		}, s.cfg.Language)
		if err != nil {
			return s.transcribeFailed(c, err)
		}

	default:
		return clientError(c, fiber.StatusUnsupportedMediaType,
			"only WAV uploads are supported by the "+s.tr.Name()+" backend")
	}

	return c.JSON(fiber.Map{"success": true, "transcript": res.Text})
}

func (s *Server) transcribeFailed(c *fiber.Ctx, err error) error {
	if errors.Is(err, transcriber.ErrEmptyAudio) {
		return clientError(c, fiber.StatusBadRequest, err.Error())
	}
	log.Logger().Error().Str("request_id", requestID(c)).Err(err).Msg("clip_transcription_failed")
	return clientError(c, fiber.StatusInternalServerError, err.Error())
}

// handleEvents streams every published record to the client, starting with
// the latest one.
func (s *Server) handleEvents(ws *websocket.Conn) {
	defer ws.Close()
	records, cancel := s.hub.Subscribe()
	defer cancel()

	if last, ok := s.hub.Last(); ok {
		if err := ws.WriteJSON(last); err != nil {
			return
		}
	}

	// The client never sends anything we need; reading detects disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := ws.WriteJSON(rec); err != nil {
				log.Debugf("events client write: %v", err)
				return
			}
		}
	}
}
