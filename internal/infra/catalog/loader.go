package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"foundry/internal/domain"
)

// Loader reads the runtime configuration. Every tunable has a default,
// so an absent config file yields a fully usable configuration.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("catalog")}
}

func newRuntimeViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setRuntimeDefaults(v)
	return v
}

func setRuntimeDefaults(v *viper.Viper) {
	v.SetDefault("storagePath", domain.DefaultStoragePath)
	v.SetDefault("workDir", domain.DefaultWorkDir)
	v.SetDefault("maxFixCycles", domain.DefaultMaxFixCycles)
	v.SetDefault("invokeTimeoutSeconds", domain.DefaultInvokeTimeoutSeconds)
	v.SetDefault("stageTimeoutSeconds", domain.DefaultStageTimeoutSeconds)
	v.SetDefault("maxParallelCycles", domain.DefaultMaxParallelCycles)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
}

type rawRuntimeConfig struct {
	StoragePath          string                 `mapstructure:"storagePath"`
	WorkDir              string                 `mapstructure:"workDir"`
	MaxFixCycles         int                    `mapstructure:"maxFixCycles"`
	InvokeTimeoutSeconds int                    `mapstructure:"invokeTimeoutSeconds"`
	StageTimeoutSeconds  int                    `mapstructure:"stageTimeoutSeconds"`
	MaxParallelCycles    int                    `mapstructure:"maxParallelCycles"`
	Observability        rawObservabilityConfig `mapstructure:"observability"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

// Load reads path when it is non-empty; otherwise defaults apply.
func (l *Loader) Load(path string) (domain.RuntimeConfig, error) {
	v := newRuntimeViper()

	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return domain.RuntimeConfig{}, fmt.Errorf("open config %s: %w", path, err)
		}
		defer func() {
			_ = file.Close()
		}()
		if err := v.ReadConfig(file); err != nil {
			return domain.RuntimeConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		l.logger.Info("configuration loaded", zap.String("path", path))
	}

	var raw rawRuntimeConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("decode config: %w", err)
	}

	config := domain.RuntimeConfig{
		StoragePath:          raw.StoragePath,
		WorkDir:              raw.WorkDir,
		MaxFixCycles:         raw.MaxFixCycles,
		InvokeTimeoutSeconds: raw.InvokeTimeoutSeconds,
		StageTimeoutSeconds:  raw.StageTimeoutSeconds,
		MaxParallelCycles:    raw.MaxParallelCycles,
		Observability: domain.ObservabilityConfig{
			ListenAddress: raw.Observability.ListenAddress,
		},
	}
	if err := validate(config); err != nil {
		return domain.RuntimeConfig{}, err
	}
	return config, nil
}

func validate(config domain.RuntimeConfig) error {
	if config.MaxFixCycles <= 0 {
		return fmt.Errorf("maxFixCycles must be positive, got %d", config.MaxFixCycles)
	}
	if config.InvokeTimeoutSeconds <= 0 {
		return fmt.Errorf("invokeTimeoutSeconds must be positive, got %d", config.InvokeTimeoutSeconds)
	}
	if config.StageTimeoutSeconds < config.InvokeTimeoutSeconds {
		return fmt.Errorf("stageTimeoutSeconds (%d) must not be below invokeTimeoutSeconds (%d)",
			config.StageTimeoutSeconds, config.InvokeTimeoutSeconds)
	}
	if config.MaxParallelCycles <= 0 {
		return fmt.Errorf("maxParallelCycles must be positive, got %d", config.MaxParallelCycles)
	}
	return nil
}
