package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeBid    LogType = "BID"
	TypeDB     LogType = "DB"
	TypeSched  LogType = "SCHED"
	TypeEvent  LogType = "EVT"
	TypeSystem LogType = "SYS"
	TypeError  LogType = "ERR"
)

type Options struct {
	Level     slog.Leveler
	Writer    io.Writer
	NoColor   bool
	AddSource bool
}

type CustomHandler struct {
	opts   Options
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewHandler(opts Options) *CustomHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &CustomHandler{
		opts:   opts,
		mu:     &sync.Mutex{},
		attrs:  make([]slog.Attr, 0),
		groups: make([]string, 0),
	}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CustomHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  merged,
		groups: h.groups,
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	return &CustomHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  h.attrs,
		groups: append(groups, name),
	}
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	timestamp := r.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var levelColor, levelText string
	switch {
	case r.Level >= slog.LevelError:
		levelColor, levelText = colorRed, "ERROR"
	case r.Level >= slog.LevelWarn:
		levelColor, levelText = colorYellow, "WARN"
	case r.Level >= slog.LevelInfo:
		levelColor, levelText = colorGreen, "INFO"
	default:
		levelColor, levelText = colorPurple, "DEBUG"
	}

	logType := getLogType(&r, h.attrs)

	message := r.Message
	if r.Level >= slog.LevelError {
		if location := getErrorLocation(&r, h.opts.AddSource); location != "" {
			message = fmt.Sprintf("%s (%s)", message, location)
		}
	}

	var attrsStr strings.Builder
	prefix := strings.Join(h.groups, ".")
	writeAttr := func(a slog.Attr) {
		if isInternalAttr(a.Key) {
			return
		}
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		fmt.Fprintf(&attrsStr, " %s=%v", key, a.Value)
	}
	for _, attr := range h.attrs {
		writeAttr(attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})

	var line string
	if h.opts.NoColor {
		line = fmt.Sprintf("[BidHouse] [%s] [%s] [%s] %s%s\n",
			timestamp.Format("15:04:05"), levelText, logType, message, attrsStr.String())
	} else {
		line = fmt.Sprintf("%s[BidHouse] [%s] [%s%s%s] [%s] %s%s%s\n",
			colorWhite,
			timestamp.Format("15:04:05"),
			levelColor,
			levelText,
			colorWhite,
			logType,
			message,
			attrsStr.String(),
			colorReset,
		)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.opts.Writer, line)
	return err
}

func getLogType(r *slog.Record, handlerAttrs []slog.Attr) LogType {
	logType := TypeSystem
	match := func(a slog.Attr) bool {
		if a.Key != "type" {
			return false
		}
		switch a.Value.String() {
		case "bid":
			logType = TypeBid
		case "db":
			logType = TypeDB
		case "sched":
			logType = TypeSched
		case "event":
			logType = TypeEvent
		case "error":
			logType = TypeError
		}
		return true
	}
	for _, a := range handlerAttrs {
		match(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		return !match(a)
	})
	return logType
}

func isInternalAttr(key string) bool {
	return key == "type" || key == "error_location"
}

func getErrorLocation(r *slog.Record, addSource bool) string {
	var location string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "error_location" {
			location = a.Value.String()
			return false
		}
		return true
	})
	if location != "" || !addSource || r.PC == 0 {
		return location
	}
	frames := runtime.CallersFrames([]uintptr{r.PC})
	frame, _ := frames.Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
