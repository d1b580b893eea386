package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/cardshop/core/buildinfo"
	coreconfig "github.com/m3rciful/cardshop/core/config"
)

var (
	initOnce sync.Once
	stopOnce sync.Once
	stopErr  error

	out     *lineWriter
	closers []io.Closer

	levelVar slog.LevelVar

	debugSample sampler
	trace       bool

	// L is the base logger. Before InitLogger runs it points at slog.Default so
	// packages and tests can log without bootstrapping.
	L *slog.Logger

	// DB logs database connectivity and repository events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// WEB logs inbound webhook requests.
	WEB *slog.Logger
	// SVCOrders logs order lifecycle transitions.
	SVCOrders *slog.Logger
	// SVCBans logs ban registry changes.
	SVCBans *slog.Logger
	// SVCNotify logs admin notification relay activity.
	SVCNotify *slog.Logger
	// BotUser logs user-bot dispatch decisions.
	BotUser *slog.Logger
	// BotAdmin logs admin-bot dispatch decisions.
	BotAdmin *slog.Logger
)

// components maps each package-level logger to its component tag.
var components = []struct {
	dst  **slog.Logger
	name string
}{
	{&DB, "db"},
	{&TG, "tg"},
	{&MIG, "db.migrate"},
	{&WEB, "webhook"},
	{&SVCOrders, "service.orders"},
	{&SVCBans, "service.bans"},
	{&SVCNotify, "service.notify"},
	{&BotUser, "bot.user"},
	{&BotAdmin, "bot.admin"},
}

func init() {
	L = slog.Default()
	debugSample.set(1, 50)
	wireComponents()
}

// InitLogger installs the structured logger as slog's default. Only the first
// call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		if cfg == nil {
			cfg = &coreconfig.Config{}
		}
		levelVar.Set(parseLevel(cfg.Logging.Level))
		debugSample.set(debugRatio(cfg.Logging.DebugSample))
		trace = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		writers, files, err := openOutputs(cfg.Logging)
		if err != nil {
			initErr = err
			return
		}
		closers = files
		out = newLineWriter(writers, 512)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:  &levelVar,
			out:    out,
			format: parseFormat(cfg.Logging),
			order:  parseKeyOrder(cfg.Logging.KeysOrder),
		}))
		slog.SetDefault(L)
		wireComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", profile(cfg.Logging)),
		)
	})
	return initErr
}

func wireComponents() {
	for _, c := range components {
		*c.dst = L.With("component", c.name)
	}
}

// Shutdown flushes pending lines and closes log files. Later calls return the
// first call's result.
func Shutdown() error {
	stopOnce.Do(func() {
		var errs []error
		if out != nil {
			errs = append(errs, out.Flush(), out.Close())
		}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		stopErr = errors.Join(errs...)
	})
	return stopErr
}

func parseFormat(cfg coreconfig.LoggingConfig) lineFormat {
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch profile(cfg) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

// parseKeyOrder reads a comma separated key list; empty or "default" keeps the built-in order.
func parseKeyOrder(raw string) []string {
	var order []string
	if raw = strings.TrimSpace(raw); raw != "default" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// debugRatio defaults to 1/50; an unparsable value disables sampling.
func debugRatio(raw string) (int, int) {
	if strings.TrimSpace(raw) == "" {
		return 1, 50
	}
	return parseRatio(raw)
}

// openOutputs always includes stdout and adds Dir/BotFile when both are set.
func openOutputs(cfg coreconfig.LoggingConfig) ([]io.Writer, []io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	dir, file := strings.TrimSpace(cfg.Dir), strings.TrimSpace(cfg.BotFile)
	if dir == "" || file == "" {
		return writers, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: open log file %s: %w", path, err)
	}
	return append(writers, f), []io.Closer{f}, nil
}

func profile(cfg coreconfig.LoggingConfig) string {
	if p := strings.TrimSpace(cfg.Profile); p != "" {
		return strings.ToLower(p)
	}
	return "prod"
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// LogEvent logs with a guaranteed event attribute, preferring the logger carried by ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L tagged with name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Debug logs a debug-level event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Error logs an error-level event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be emitted.
// TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return trace || debugSample.allow()
}
