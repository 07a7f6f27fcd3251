package cli

import (
	"fmt"
	"io"
	"os"

	"modelbridge/internal/config"
)

// Config carries the root persistent flags.
type Config struct {
	ConfigPath string
	EngineURL  string
	SocketURL  string
	Addr       string
	LogLvl     string

	// Out and Err default to os.Stdout and os.Stderr.
	Out io.Writer
	Err io.Writer
}

// resolve merges file, environment and flags, in increasing precedence.
func (c *Config) resolve(lookup func(string) (string, bool)) (config.Config, error) {
	var fc config.Config
	if c.ConfigPath != "" {
		loaded, err := config.Load(c.ConfigPath)
		if err != nil {
			return fc, fmt.Errorf("load config: %w", err)
		}
		fc = loaded
	}
	fc, err := fc.ApplyEnv(lookup)
	if err != nil {
		return fc, fmt.Errorf("environment: %w", err)
	}
	if c.EngineURL != "" {
		fc.EngineURL = c.EngineURL
	}
	if c.SocketURL != "" {
		fc.SocketURL = c.SocketURL
	}
	if c.Addr != "" {
		fc.Addr = c.Addr
	}
	if c.LogLvl != "" {
		fc.LogLevel = c.LogLvl
	}
	return fc.WithDefaults(), nil
}

func (c *Config) stdout() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func (c *Config) stderr() io.Writer {
	if c.Err != nil {
		return c.Err
	}
	return os.Stderr
}
