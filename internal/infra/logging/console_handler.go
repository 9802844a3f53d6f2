package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset     = "\033[0m"
	ansiRed       = "\033[31m"
	ansiGreen     = "\033[32m"
	ansiYellow    = "\033[33m"
	ansiCyan      = "\033[36m"
	ansiGray      = "\033[90m"
	ansiUnderline = "\033[4m"
)

//nolint:gochecknoglobals
var levelColors = map[slog.Level]string{
	slog.LevelDebug: ansiCyan,
	slog.LevelInfo:  ansiGreen,
	slog.LevelWarn:  ansiYellow,
	slog.LevelError: ansiRed,
}

// loggerKey is the attribute GetLogger names a logger with.
const loggerKey = "logger"

// ConsoleHandler writes colored, human-readable records for terminals.
//
// PkgLevels overrides Level per logger name. A name matches its own entry
// and the entries of its dotted parents, so "svc.mediasvc" covers
// "svc.mediasvc.provider"; the most specific entry wins.
type ConsoleHandler struct {
	// Output is the destination for log output (typically os.Stdout or os.Stderr)
	Output io.Writer
	// Level is the minimum level for records of loggers without an override
	Level slog.Leveler
	// PkgLevels maps logger names to minimum log levels
	PkgLevels map[string]slog.Level

	name   string
	attrs  []slog.Attr
	groups []string
	m      *sync.Mutex
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// NewConsoleHandler creates a ConsoleHandler. Handlers derived from it
// share one lock around writes to output.
func NewConsoleHandler(output io.Writer, level slog.Leveler, pkgLevels map[string]slog.Level) *ConsoleHandler {
	return &ConsoleHandler{
		Output:    output,
		Level:     level,
		PkgLevels: pkgLevels,
		m:         new(sync.Mutex),
	}
}

// Enabled implements slog.Handler.Enabled.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.minLevel() <= level
}

// minLevel is the level for this handler's logger, falling back to the
// lowest override while the logger name is not known yet.
func (h *ConsoleHandler) minLevel() slog.Level {
	if h.name != "" {
		return h.levelFor(h.name)
	}

	lowest := h.Level.Level()
	for _, level := range h.PkgLevels {
		lowest = min(lowest, level)
	}

	return lowest
}

func (h *ConsoleHandler) levelFor(name string) slog.Level {
	for key := name; key != ""; {
		if level, ok := h.PkgLevels[key]; ok {
			return level
		}

		i := strings.LastIndexByte(key, '.')
		if i < 0 {
			break
		}

		key = key[:i]
	}

	return h.Level.Level()
}

// Handle implements slog.Handler.Handle.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Level < h.levelFor(h.name) {
		return nil
	}

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)

	r.Attrs(func(a slog.Attr) bool {
		if len(h.groups) > 0 {
			a.Key = strings.Join(h.groups, ".") + "." + a.Key
		}

		attrs = append(attrs, a)

		return true
	})

	var line strings.Builder

	line.WriteString(ansiGray + r.Time.Format("15:04:05.000000") + ansiReset)
	line.WriteString(" " + levelColors[r.Level] + "[" + r.Level.String() + "]" + ansiReset)
	line.WriteString(" " + r.Message)

	if len(attrs) > 0 {
		line.WriteString(" " + ansiGray + "|" + ansiReset)
		renderAttrs(&line, "", attrs)
	}

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fn := strings.Split(frame.Function, string(os.PathSeparator))

		line.WriteString("\n-> " + ansiGray + fn[len(fn)-1] + "()")
		line.WriteString(" in " + ansiUnderline + frame.File + ":" + strconv.Itoa(frame.Line) + ansiReset)
	}

	if h.m != nil {
		h.m.Lock()
		defer h.m.Unlock()
	}

	_, err := fmt.Fprintln(h.Output, line.String())

	//nolint:wrapcheck
	return err
}

func renderAttrs(out *strings.Builder, prefix string, attrs []slog.Attr) {
	for _, attr := range attrs {
		if attr.Value.Kind() == slog.KindGroup {
			renderAttrs(out, prefix+attr.Key+".", attr.Value.Group())

			continue
		}

		out.WriteString(" " + prefix + attr.Key + "=" + ansiGray + attr.Value.String() + ansiReset)
	}
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := h.clone()

	for _, attr := range attrs {
		if attr.Key == loggerKey && len(h.groups) == 0 {
			clone.name = attr.Value.String()
		}

		if len(h.groups) > 0 {
			attr.Key = strings.Join(h.groups, ".") + "." + attr.Key
		}

		clone.attrs = append(clone.attrs, attr)
	}

	return clone
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ConsoleHandler) WithGroup(name string) Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)

	return clone
}

func (h *ConsoleHandler) clone() *ConsoleHandler {
	return &ConsoleHandler{
		Output:    h.Output,
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		name:      h.name,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
		m:         h.m,
	}
}
