package config

import "os"

// Environment variables read by the CLI. They sit between the config file
// and command-line flags in the override chain.
const (
	EnvConfig   = "AUTHWIRE_CONFIG"    // config file path
	EnvBaseURL  = "AUTHWIRE_BASE_URL"  // [client] base_url
	EnvStore    = "AUTHWIRE_STORE"     // [session] store
	EnvLogLevel = "AUTHWIRE_LOG_LEVEL" // [logging] log_level
)

// EnvOverrides is the environment layer. Empty fields leave the file value
// in place.
type EnvOverrides struct {
	ConfigPath string
	BaseURL    string
	Store      string
	LogLevel   string
}

// ReadEnvOverrides snapshots the AUTHWIRE_* variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		Store:      os.Getenv(EnvStore),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}

// apply copies the set fields onto cfg. The config path is consumed
// earlier, by ResolvePath.
func (e EnvOverrides) apply(cfg *Config) {
	if e.BaseURL != "" {
		cfg.Client.BaseURL = e.BaseURL
	}

	if e.Store != "" {
		cfg.Session.Store = e.Store
	}

	if e.LogLevel != "" {
		cfg.Logging.LogLevel = e.LogLevel
	}
}
