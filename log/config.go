package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"moul.io/zapfilter"
)

// Config describes the optional log configuration file.
// Filters use the zapfilter rule syntax, e.g. "debug:processing.* info:*".
type Config struct {
	DefaultLevel string `yaml:"defaultLevel"`
	Filters      string `yaml:"filters"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read log config %s: %w", path, err)
	}
	ret := &Config{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("could not parse log config %s: %w", path, err)
	}
	return ret, nil
}

// WithFilterRules returns a logger whose core drops entries not matched by the
// given zapfilter rules. Invalid rules leave the logger unchanged.
func (l *Logger) WithFilterRules(rules string) *Logger {
	if rules == "" {
		return l
	}
	parsed, err := zapfilter.ParseRules(rules)
	if err != nil {
		l.Warn("invalid log filter rules", String("rules", rules), ErrorField(err))
		return l
	}
	filtered := l.l.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapfilter.NewFilteringCore(core, parsed)
	}))
	return &Logger{l: filtered, level: l.level}
}
