package logger

import (
	"time"

	"github.com/cpacket/appliance-registrar/configuration"
	"github.com/cpacket/appliance-registrar/internal/buildinfo"
	cores "github.com/cpacket/appliance-registrar/logger/cores"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultMaxBatchInterval = 30 * time.Second
	defaultMaxBatchSize     = 32000
	defaultGracePeriod      = 30 * time.Second
)

type compoundCloser []func()

func (c compoundCloser) Close() {
	for _, closer := range c {
		closer()
	}
}

// New builds the process logger from the log section of the configuration:
// stdout always, a rotated file when a path is set and Application Insights
// when a connection string or instrumentation key is set.
func New(cfg *configuration.LogConfig) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, func() {}, errors.Wrapf(err, "failed to parse log level %q", cfg.Level)
	}

	closer := compoundCloser{}
	fileCore, fileCloser, err := cores.FileCore(&cores.FileConfig{
		Filepath:   cfg.File,
		Level:      level,
		MaxBackups: cfg.FileMaxBackups,
		MaxSize:    cfg.FileMaxSize,
	})
	closer = append(closer, fileCloser)
	if err != nil {
		return nil, closer.Close, err //nolint:wrapcheck // it's an internal pkg
	}
	aiCore, aiCloser, err := cores.ApplicationInsightsCore(&cores.AIConfig{
		ConnectionString: cfg.AppInsightsConnString,
		IKey:             cfg.AppInsightsIKey,
		AppName:          buildinfo.Name,
		AppVersion:       buildinfo.Version,
		GracePeriod:      defaultGracePeriod,
		Level:            level,
		MaxBatchInterval: defaultMaxBatchInterval,
		MaxBatchSize:     defaultMaxBatchSize,
	})
	closer = append(closer, aiCloser)
	if err != nil {
		return nil, closer.Close, err //nolint:wrapcheck // it's an internal pkg
	}
	core := zapcore.NewTee(cores.StdoutCore(level), fileCore, aiCore)
	logger := zap.New(core).With(zap.String("version", buildinfo.Version))
	closer = append([]func(){func() { _ = logger.Sync() }}, closer...)
	return logger, closer.Close, nil
}
