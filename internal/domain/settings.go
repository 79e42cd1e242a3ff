package domain

import "time"

const (
	ThemeLight = 0
	ThemeDark  = 1
)

const (
	DefaultTimeoutSeconds = 30
	DefaultDownloadDir    = "./downloads"
)

// Settings is replaced wholesale on save, never mutated in place.
type Settings struct {
	DownloadDirectory string `json:"download_directory" mapstructure:"download_directory"`
	ThemeIndex        int    `json:"theme_index" mapstructure:"theme_index"`
	TimeoutSeconds    int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Proxy             string `json:"proxy" mapstructure:"proxy"`
}

func DefaultSettings() Settings {
	return Settings{
		DownloadDirectory: DefaultDownloadDir,
		ThemeIndex:        ThemeLight,
		TimeoutSeconds:    DefaultTimeoutSeconds,
	}
}

// Normalize fills zero values from defaults and clamps the theme index.
func (s Settings) Normalize() Settings {
	if s.DownloadDirectory == "" {
		s.DownloadDirectory = DefaultDownloadDir
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.ThemeIndex != ThemeDark {
		s.ThemeIndex = ThemeLight
	}
	return s
}

func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}
