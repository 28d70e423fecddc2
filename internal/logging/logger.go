package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config selects the global level, the output format and per-module
// level overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	// Output replaces stdout. The journal is not used when it is set.
	Output io.Writer `toml:"-"`
}

// acceptAll is the level sinks are built with; module handlers filter.
const acceptAll = slog.Level(-8)

// sink is one generation of the shared output handler.
type sink struct {
	gen     uint64
	handler slog.Handler
}

type registry struct {
	mu      sync.Mutex
	config  Config
	levels  map[string]*slog.LevelVar
	loggers map[string]*slog.Logger
	global  slog.LevelVar
	sink    atomic.Pointer[sink]
}

var std = newRegistry()

func newRegistry() *registry {
	r := &registry{
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
	}
	r.sink.Store(&sink{handler: buildSink(Config{})})
	return r
}

// Initialize applies config to every module logger, including those
// handed out before the call, and makes the global level the slog default.
func Initialize(config Config) {
	std.initialize(config)
}

// GetLogger returns the logger of module. Records carry a module attribute.
func GetLogger(module string) *slog.Logger {
	return std.logger(module)
}

// SetModuleLevel changes the level of one module at runtime. It reports
// whether level was understood.
func SetModuleLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	std.logger(module)
	std.mu.Lock()
	std.levels[module].Set(*parsed)
	std.mu.Unlock()
	return true
}

func (r *registry) initialize(config Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
	r.global.Set(levelOr(config.Level, slog.LevelInfo))
	for module, lv := range r.levels {
		lv.Set(r.moduleLevel(module))
	}
	prev := r.sink.Load()
	r.sink.Store(&sink{gen: prev.gen + 1, handler: buildSink(config)})

	slog.SetDefault(slog.New(&moduleHandler{level: &r.global, reg: r}))
}

func (r *registry) logger(module string) *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[module]; ok {
		return l
	}
	lv := &slog.LevelVar{}
	lv.Set(r.moduleLevel(module))
	l := slog.New(&moduleHandler{level: lv, reg: r}).With("module", module)
	r.levels[module] = lv
	r.loggers[module] = l
	return l
}

// moduleLevel is the override for module, else the global level. Callers
// hold r.mu.
func (r *registry) moduleLevel(module string) slog.Level {
	global := levelOr(r.config.Level, slog.LevelInfo)
	return levelOr(r.config.Modules[module], global)
}

// moduleHandler filters by its module level and writes through the
// current sink, so a logger keeps working across Initialize calls.
type moduleHandler struct {
	level   slog.Leveler
	reg     *registry
	derive  []func(slog.Handler) slog.Handler
	derived atomic.Pointer[sink]
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, rec slog.Record) error {
	return h.current().Handle(ctx, rec)
}

func (h *moduleHandler) current() slog.Handler {
	base := h.reg.sink.Load()
	if d := h.derived.Load(); d != nil && d.gen == base.gen {
		return d.handler
	}
	out := base.handler
	for _, fn := range h.derive {
		out = fn(out)
	}
	h.derived.Store(&sink{gen: base.gen, handler: out})
	return out
}

func (h *moduleHandler) with(fn func(slog.Handler) slog.Handler) *moduleHandler {
	derive := make([]func(slog.Handler) slog.Handler, len(h.derive), len(h.derive)+1)
	copy(derive, h.derive)
	return &moduleHandler{level: h.level, reg: h.reg, derive: append(derive, fn)}
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

// buildSink writes to stdout, or config.Output, and to the journal when
// journald is listening.
func buildSink(config Config) slog.Handler {
	out := config.Output
	journal := false
	if out == nil {
		out = os.Stdout
		journal = journalAvailable()
	}

	opts := &slog.HandlerOptions{Level: acceptAll}
	var console slog.Handler
	if strings.EqualFold(config.Format, "json") {
		console = slog.NewJSONHandler(out, opts)
	} else {
		console = slog.NewTextHandler(out, opts)
	}

	switch {
	case journal && config.Output == nil && !stdoutAttached():
		return newJournalHandler(acceptAll)
	case journal:
		return tee(console, newJournalHandler(acceptAll))
	default:
		return console
	}
}

// stdoutAttached is false when stdout is closed, as under a systemd unit
// without an output stream.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func levelOr(s string, def slog.Level) slog.Level {
	if l := parseLevel(s); l != nil {
		return *l
	}
	return def
}

// parseLevel returns nil for anything but debug, info, warn(ing) and error.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
