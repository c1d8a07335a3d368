package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the optional local log. The Functions sandbox has a
// small writable disk, so a few compressed backups are kept and old ones
// age out.
const (
	defaultFileMaxSize    = 10 // MB
	defaultFileMaxBackups = 3
	defaultFileMaxAgeDays = 7
)

type FileConfig struct {
	Filepath   string
	Level      zapcore.Level
	MaxBackups int
	// MaxSize is in megabytes.
	MaxSize    int
	MaxAgeDays int
}

// FileCore builds a core writing JSON lines to a rotated file, and a func
// that closes the file. An empty Filepath yields a no-op core, which is the
// normal case when running under the Functions host.
func FileCore(cfg *FileConfig) (zapcore.Core, func(), error) {
	if cfg.Filepath == "" {
		return zapcore.NewNopCore(), func() {}, nil
	}
	sink := &lumberjack.Logger{
		Filename:   cfg.Filepath,
		MaxSize:    orDefault(cfg.MaxSize, defaultFileMaxSize),
		MaxBackups: orDefault(cfg.MaxBackups, defaultFileMaxBackups),
		MaxAge:     orDefault(cfg.MaxAgeDays, defaultFileMaxAgeDays),
		Compress:   true,
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(sink), cfg.Level)
	return core, func() { _ = sink.Close() }, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
