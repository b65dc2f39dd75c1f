package config

const (
	defaultStateDir       = "~/.local/share/syncabull"
	defaultDestinationDir = "~/photos"
	defaultLogDir         = "~/.local/share/syncabull/logs"

	defaultLibraryBaseURL = "https://photoslibrary.googleapis.com/v1"
	defaultPageSize       = 50
	defaultRequestTimeout = 20
	defaultRequestsPerSec = 5.0

	defaultTokenURL             = "https://oauth2.googleapis.com/token"
	defaultRefreshMarginMinutes = 5
	defaultRefreshTimeout       = 30

	defaultConcurrency        = 4
	defaultMaxAttempts        = 4
	defaultBackoffBaseSeconds = 1
	defaultBackoffCapSeconds  = 1800
	defaultAssetURLTTLMinutes = 55
	defaultDownloadTimeout    = 600

	defaultScanInterval       = 300
	defaultIdleScanInterval   = 1800
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:       defaultStateDir,
			DestinationDir: defaultDestinationDir,
			LogDir:         defaultLogDir,
		},
		Library: Library{
			BaseURL:        defaultLibraryBaseURL,
			PageSize:       defaultPageSize,
			RequestTimeout: defaultRequestTimeout,
			RequestsPerSec: defaultRequestsPerSec,
		},
		OAuth: OAuth{
			TokenURL:             defaultTokenURL,
			RefreshMarginMinutes: defaultRefreshMarginMinutes,
			RefreshTimeout:       defaultRefreshTimeout,
		},
		Sync: Sync{
			Concurrency:        defaultConcurrency,
			MaxAttempts:        defaultMaxAttempts,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffCapSeconds:  defaultBackoffCapSeconds,
			AssetURLTTLMinutes: defaultAssetURLTTLMinutes,
			DownloadTimeout:    defaultDownloadTimeout,
		},
		Workflow: Workflow{
			ScanInterval:       defaultScanInterval,
			IdleScanInterval:   defaultIdleScanInterval,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
