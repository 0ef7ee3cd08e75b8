package engine

import (
	"github.com/spaghettifunk/framecore/engine/config"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel string
	// Window opens a platform window.
	Window bool
	// Config is the full engine configuration the fields above came from.
	Config *config.Config
	// ConfigPath is watched for changes when set.
	ConfigPath string
}

// NewApplicationConfig reads the application section of cfg.
func NewApplicationConfig(cfg *config.Config, path string) *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX:   cfg.Application.PosX,
		StartPosY:   cfg.Application.PosY,
		StartWidth:  cfg.Application.Width,
		StartHeight: cfg.Application.Height,
		Name:        cfg.Application.Name,
		LogLevel:    cfg.Application.LogLevel,
		Window:      cfg.Application.Window,
		Config:      cfg,
		ConfigPath:  path,
	}
}
