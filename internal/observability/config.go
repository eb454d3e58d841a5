package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/bursar/internal/config"
)

// Config holds observability settings derived from the process config and
// the standard OTEL_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "bursar"
	}

	protocol := lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", lookup("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	sampling, err := strconv.ParseFloat(lookup("OTEL_SAMPLING_RATIO", "0.1"), 64)
	if err != nil {
		sampling = 0.1
	}
	enabled, err := strconv.ParseBool(lookup("OTEL_ENABLED", "false"))
	if err != nil {
		enabled = false
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          lookup("DEPLOYMENT_ENV", cfg.Environment),
		Version:              lookup("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(lookup("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(lookup("LOG_FORMAT", "json")),
		OtelEnabled:          enabled,
		OtelExporterEndpoint: lookup("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(protocol),
		OtelSamplingRatio:    sampling,
	}
}

// Debug is true for debug log level or any local environment.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lookup(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}
