package config

const (
	defaultStagingDir          = "~/.local/share/chevelle/staging"
	defaultLogDir              = "~/.local/share/chevelle/logs"
	defaultDevice              = "/dev/sr0"
	defaultSpeed               = 4
	defaultCapacityMinutes     = 74.0
	defaultMode                = "dao"
	defaultMaxConcurrent       = 4
	defaultTrackTimeout        = 600
	defaultProbeTimeout        = 30
	defaultMaxRetries          = 2
	defaultDeviceLockTimeout   = 300
	defaultBurnTimeout         = 3600
	defaultWaitForMediaTimeout = 600
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Disc: Disc{
			Device:          defaultDevice,
			Speed:           defaultSpeed,
			CapacityMinutes: defaultCapacityMinutes,
			Mode:            defaultMode,
			EjectAfterBurn:  true,
		},
		Encoding: Encoding{
			MaxConcurrent: defaultMaxConcurrent,
			TrackTimeout:  defaultTrackTimeout,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Burning: Burning{
			MaxRetries:           defaultMaxRetries,
			DeviceLockTimeout:    defaultDeviceLockTimeout,
			BurnTimeout:          defaultBurnTimeout,
			Verify:               true,
			WaitForMediaTimeout:  defaultWaitForMediaTimeout,
			RequireBlankPresence: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Discs:          true,
			Session:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
