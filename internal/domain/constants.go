package domain

const (
	DefaultMaxFixCycles               = 5
	DefaultInvokeTimeoutSeconds       = 30
	DefaultStageTimeoutSeconds        = 60
	DefaultMaxParallelCycles          = 4
	DefaultMinDescriptionLength       = 6
	DefaultObservabilityListenAddress = ""
	DefaultStoragePath                = "foundry.db"
	DefaultWorkDir                    = "tools"
)

// RuntimeConfig is the typed view of the loaded configuration.
type RuntimeConfig struct {
	StoragePath          string              `json:"storagePath"`
	WorkDir              string              `json:"workDir"`
	MaxFixCycles         int                 `json:"maxFixCycles"`
	InvokeTimeoutSeconds int                 `json:"invokeTimeoutSeconds"`
	StageTimeoutSeconds  int                 `json:"stageTimeoutSeconds"`
	MaxParallelCycles    int                 `json:"maxParallelCycles"`
	Observability        ObservabilityConfig `json:"observability"`
}

type ObservabilityConfig struct {
	ListenAddress string `json:"listenAddress"`
}
