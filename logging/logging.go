package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKeyType string

const (
	loggerKey = loggerKeyType("logger")

	defaultMemoryLines = 1000
)

// Options configures the root logger
type Options struct {
	DevMode bool
	// LogFile receives JSON lines, no file is written when empty
	LogFile string
	// MemoryLines is the number of recent lines kept for Dump
	MemoryLines int
	// Console overrides stdout for the development console output
	Console io.Writer
}

var (
	rootLogger = zap.NewNop()
	memory     *MemoryLogs
	lock       sync.RWMutex
)

// Init configures the root logger. Until Init is called, loggers obtained
// from this package discard everything.
func Init(opts Options) error {
	debugFilter := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.DebugLevel
	})
	infoFilter := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.InfoLevel
	})

	var jsonEncoder zapcore.Encoder
	if opts.DevMode {
		jsonEncoder = zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		jsonEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	var cores []zapcore.Core
	var fileFilter zap.LevelEnablerFunc
	if opts.DevMode {
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		var out io.Writer = os.Stdout
		if opts.Console != nil {
			out = opts.Console
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(out)), debugFilter))
		fileFilter = debugFilter
	} else {
		fileFilter = infoFilter
	}

	if opts.LogFile != "" {
		logfile, err := os.OpenFile(opts.LogFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.Lock(logfile), fileFilter))
	}

	lines := opts.MemoryLines
	if lines <= 0 {
		lines = defaultMemoryLines
	}
	mem := NewMemoryLogger(lines)
	cores = append(cores, zapcore.NewCore(jsonEncoder, mem, fileFilter))

	logger := zap.New(zapcore.NewTee(cores...))

	lock.Lock()
	rootLogger = logger
	memory = mem
	lock.Unlock()

	logger.With(zap.Bool("devmode", opts.DevMode)).Info("Logging initialized")
	return nil
}

// Dump writes the most recent log lines held in memory to w, newest first
// if reverse is set
func Dump(w io.Writer, reverse bool) error {
	lock.RLock()
	mem := memory
	lock.RUnlock()
	if mem == nil {
		return nil
	}
	return mem.Export(w, reverse)
}

// Sync flushes the root logger
func Sync() {
	root().Sync()
}

func root() *zap.Logger {
	lock.RLock()
	defer lock.RUnlock()
	return rootLogger
}

// From returns the logger of the current context, if no logger is available, returns the root logger
func From(ctx context.Context) *zap.Logger {
	l := ctx.Value(loggerKey)
	if l == nil {
		return root()
	}
	return l.(*zap.Logger)
}

func SubFrom(ctx context.Context, name string) (*zap.Logger, context.Context) {
	logger := From(ctx).Named(name)
	return logger, Context(ctx, logger)
}

func Context(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = root()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

func FromWithNameAndFields(ctx context.Context, name string, fields ...zapcore.Field) (*zap.Logger, context.Context) {
	logger := From(ctx).With(fields...).Named(name)
	ctx = Context(ctx, logger)
	return logger, ctx
}

func FromWithFields(ctx context.Context, fields ...zapcore.Field) (*zap.Logger, context.Context) {
	logger := From(ctx).With(fields...)
	ctx = Context(ctx, logger)
	return logger, ctx
}
