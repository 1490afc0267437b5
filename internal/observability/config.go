package observability

import (
	"strings"

	"github.com/lukasmk87/basketmanager/internal/config"
)

// Config is the slice of the application config the telemetry stack reads.
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
		serviceName = "basketmanager"
	}
	tel := cfg.Telemetry
	level := strings.ToLower(strings.TrimSpace(tel.LogLevel))
	if level == "" {
		level = "info"
	}
	ratio := tel.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             level,
		LogFormat:            strings.ToLower(strings.TrimSpace(tel.LogFormat)),
		OtelEnabled:          tel.OtelEnabled && strings.TrimSpace(tel.OtlpEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(tel.OtlpEndpoint),
		OtelExporterProtocol: tel.OtlpProtocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug switches on verbose request logging and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
