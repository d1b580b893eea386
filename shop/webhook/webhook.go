// Package webhook exposes the HTTP surface: one webhook endpoint per bot,
// a health probe and the metrics endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram"
	"github.com/m3rciful/cardshop/shop/gate"
)

const (
	// DefaultMaxBody caps an update payload.
	DefaultMaxBody int64 = 1 << 20
	// DefaultHandleTimeout bounds the processing of one update.
	DefaultHandleTimeout = 10 * time.Second
)

// Dispatcher processes decoded updates.
type Dispatcher interface {
	VerifySecret(kind gate.BotKind, secret string) error
	Handle(ctx context.Context, kind gate.BotKind, secret string, upd *tele.Update) error
}

// Observer counts webhook responses.
type Observer interface {
	WebhookRequest(bot string, code int)
}

// Options configures the router.
type Options struct {
	Dispatcher Dispatcher
	Observer   Observer
	// Metrics is mounted on GET /metrics when set.
	Metrics       http.Handler
	MaxBody       int64
	HandleTimeout time.Duration
}

type server struct {
	opts Options
}

// NewRouter builds the chi router.
func NewRouter(opts Options) *chi.Mux {
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = DefaultHandleTimeout
	}
	s := &server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(telegram.WebhookRoute, s.webhook)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	return r
}

// webhook answers 403 for an unknown bot or a wrong secret before reading the
// body. With a valid secret it always answers 200 so the platform does not
// redeliver; failures are logged only.
func (s *server) webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	kind := gate.BotKind(chi.URLParam(r, "kind"))
	secret := chi.URLParam(r, "secret")
	ctx := logger.WithBot(r.Context(), string(kind))

	if err := s.opts.Dispatcher.VerifySecret(kind, secret); err != nil {
		logger.LogEvent(ctx, logger.WEB, slog.LevelWarn, "webhook.rejected",
			slog.String("status", "fail"),
			slog.Int("http_code", http.StatusForbidden),
			slog.String("remote", r.RemoteAddr),
		)
		s.respond(w, kind, http.StatusForbidden, map[string]string{"status": "forbidden"})
		return
	}

	var upd tele.Update
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBody)
	if err := json.NewDecoder(body).Decode(&upd); err != nil {
		logger.LogEvent(ctx, logger.WEB, slog.LevelWarn, "webhook.decode",
			slog.String("status", "fail"),
			slog.String("err", decodeError(err)),
		)
		s.respond(w, kind, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.HandleTimeout)
	defer cancel()
	if err := s.opts.Dispatcher.Handle(hctx, kind, secret, &upd); err != nil {
		logger.LogEvent(ctx, logger.WEB, slog.LevelError, "webhook.handle",
			slog.String("status", "fail"),
			slog.Int("update_id", upd.ID),
			slog.String("err", err.Error()),
		)
	}
	logger.LogEvent(ctx, logger.WEB, slog.LevelDebug, "webhook.done",
		slog.String("status", "ok"),
		slog.Int("update_id", upd.ID),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	s.respond(w, kind, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) respond(w http.ResponseWriter, kind gate.BotKind, code int, body any) {
	if s.opts.Observer != nil {
		bot := string(kind)
		if !kind.Valid() {
			bot = "unknown"
		}
		s.opts.Observer.WebhookRequest(bot, code)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeError(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return "payload too large"
	case errors.Is(err, io.EOF):
		return "empty body"
	}
	return err.Error()
}
