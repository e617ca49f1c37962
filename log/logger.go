// Package log provides the structured, leveled logging API used across
// the engine and adapters packages. The call shape is a key/value
// variant:
//
//	logger.Info("armed pending action", "owner", owner, "source", src)
//
// It is backed by go.uber.org/zap's SugaredLogger rather than a
// hand-rolled formatter.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module tags the subsystem emitting a log line. Kept as a plain string
// (not an enum) because new engine components should not require a
// change to this package.
type Module string

const (
	Common        Module = "common"
	ClusterStream Module = "cluster-stream"
	Router        Module = "router"
	AutoDiscovery Module = "auto-discovery"
	Session       Module = "session"
	Materializer  Module = "materializer"
	Bundle        Module = "bundle"
	VolumeTimer   Module = "volume-timer"
	RPCClient     Module = "rpc-client"
	WSClient      Module = "ws-client"
	BlockEngine   Module = "block-engine"
	Viz           Module = "viz"
)

// Logger is the minimal structured-logging surface engine code depends
// on. Keeping it as an interface (rather than exporting *zap.SugaredLogger
// directly) lets tests substitute a no-op or recording implementation.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

func (z *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: z.s.With(kv...)}
}

var (
	baseOnce sync.Once
	base     *zap.SugaredLogger
)

func baseLogger() *zap.SugaredLogger {
	baseOnce.Do(func() {
		cfg := zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "module",
			MessageKey:     "msg",
			CallerKey:      "",
			StacktraceKey:  "",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
		base = zap.New(core).Sugar()
	})
	return base
}

// NewModuleLogger returns a Logger tagged with the given module name,
// following the module-level-singleton convention used throughout this
// codebase (one named logger per package, held as a package var).
func NewModuleLogger(m Module) Logger {
	return &zapLogger{s: baseLogger().Named(string(m))}
}

// SetLevel adjusts the global minimum level. Tests typically leave this
// untouched; it exists so cmd/solbot can enable debug output.
func SetLevel(lvl zapcore.Level) {
	// Rebuild a fresh base logger at the requested level. Cheap and rare
	// enough (process startup only) that replacing the singleton is fine.
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "module",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), lvl)
	base = zap.New(core).Sugar()
}
