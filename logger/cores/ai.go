package logger

import (
	"runtime"
	"strings"
	"time"

	"github.com/Azure/azure-container-networking/zapai"
	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrInvalidConnectionString = errors.New("invalid application insights connection string")

type AIConfig struct {
	// ConnectionString is preferred over IKey when both are set.
	ConnectionString string
	IKey             string
	AppName          string
	AppVersion       string
	GracePeriod      time.Duration
	Level            zapcore.Level
	MaxBatchInterval time.Duration
	MaxBatchSize     int
}

// ApplicationInsightsCore builds a zapcore.Core that sends logs to Application Insights.
// The first return is the core, the second is a function to close the sink.
// Without an instrumentation key a no-op core is returned.
func ApplicationInsightsCore(cfg *AIConfig) (zapcore.Core, func(), error) {
	ikey, endpoint := cfg.IKey, ""
	if cfg.ConnectionString != "" {
		var err error
		ikey, endpoint, err = ParseConnectionString(cfg.ConnectionString)
		if err != nil {
			return nil, func() {}, err
		}
	}
	if ikey == "" {
		return zapcore.NewNopCore(), func() {}, nil
	}
	// build the AI config
	aicfg := *appinsights.NewTelemetryConfiguration(ikey)
	if endpoint != "" {
		aicfg.EndpointUrl = endpoint
	}
	aicfg.MaxBatchSize = cfg.MaxBatchSize
	aicfg.MaxBatchInterval = cfg.MaxBatchInterval
	sinkcfg := zapai.SinkConfig{
		GracePeriod:            cfg.GracePeriod,
		TelemetryConfiguration: aicfg,
	}
	// open the AI zap sink
	sink, aiclose, err := zap.Open(sinkcfg.URI())
	if err != nil {
		return nil, aiclose, errors.Wrap(err, "failed to open AI sink")
	}
	core := zapai.NewCore(cfg.Level, sink)
	core = core.WithFieldMappers(zapai.DefaultMappers)
	return core.With([]zapcore.Field{
		zap.String("user_id", runtime.GOOS),
		zap.String("version", cfg.AppVersion),
		zap.String("AppName", cfg.AppName),
	}), aiclose, nil
}

// ParseConnectionString extracts the instrumentation key and the track
// endpoint from an Application Insights connection string.
func ParseConnectionString(connectionString string) (ikey, endpoint string, err error) {
	for _, pair := range strings.Split(connectionString, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return "", "", errors.Wrapf(ErrInvalidConnectionString, "malformed pair %q", pair)
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch strings.ToLower(key) {
		case "instrumentationkey":
			ikey = value
		case "ingestionendpoint":
			endpoint = strings.TrimSuffix(value, "/") + "/v2/track"
		}
	}
	if ikey == "" {
		return "", "", errors.Wrap(ErrInvalidConnectionString, "missing InstrumentationKey")
	}
	return ikey, endpoint, nil
}
