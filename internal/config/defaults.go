package config

const (
	defaultConfigPath             = "~/.config/uukscan/config.toml"
	defaultDataDirFallback        = "~/.local/share/uukscan"
	defaultLogDir                 = "~/.local/share/uukscan/logs"
	defaultBackendURL             = "http://127.0.0.1:8080"
	defaultSource                 = "uuk-exhibitor-scan"
	defaultSubmitTimeoutSeconds   = 5
	defaultProbeIntervalSeconds   = 15
	defaultProbeTimeoutSeconds    = 3
	defaultResultDelayMS          = 2000
	defaultSessionResultDelayMS   = 3000
	defaultSessionDebounceMS      = 1000
	defaultCameraDriver           = "exec"
	defaultCameraCommand          = "zbarcam"
	defaultCameraDevice           = "/dev/video0"
	defaultNotifyRequestTimeout   = 10
	defaultNotifyBacklogThreshold = 25
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir(),
			LogDir:  defaultLogDir,
		},
		Backend: Backend{
			BaseURL:              defaultBackendURL,
			Source:               defaultSource,
			SubmitTimeoutSeconds: defaultSubmitTimeoutSeconds,
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
		},
		Station: Station{
			ResultDelayMS:        defaultResultDelayMS,
			SessionResultDelayMS: defaultSessionResultDelayMS,
			SessionDebounceMS:    defaultSessionDebounceMS,
		},
		Camera: Camera{
			Driver:  defaultCameraDriver,
			Command: defaultCameraCommand,
			Args:    []string{"--raw", "--nodisplay"},
			Device:  defaultCameraDevice,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			BacklogThreshold: defaultNotifyBacklogThreshold,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
