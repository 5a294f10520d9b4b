package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It is a no-op until InitLogger runs.
var Log = zap.NewNop()

type options struct {
	file      string
	maxSizeMB int
}

type Option func(*options)

// WithFile sends output to a size-rotated file instead of stderr.
func WithFile(path string, maxSizeMB int) Option {
	return func(o *options) {
		o.file = path
		o.maxSizeMB = maxSizeMB
	}
}

// InitLogger builds Log from a level name (debug, info, warn, error) and a
// format (json or console).
func InitLogger(level, format string, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if o.file != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    o.maxSizeMB,
			MaxBackups: 5,
			Compress:   true,
		})
	}

	Log = zap.New(zapcore.NewCore(enc, sink, lvl), zap.AddCaller())
	return nil
}

func Sync() {
	_ = Log.Sync()
}
