package vvlog

import (
	"log"

	"github.com/natefinch/lumberjack"
)

// LogConfig is the [logging] TOML table: an optional rotating log file.
// With no Logfile, messages stay on stdout.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"` // megabytes
	MaxAge  int `toml:"max_log_age"`  // days
}

// Apply routes package output to a rotating file when one is configured
// and registers it for Close. Calling Apply with no Logfile is a no-op, so
// callers can apply whatever config they loaded without checking first.
func (c *LogConfig) Apply() {
	if c == nil || c.Logfile == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	mu.Lock()
	sink = log.New(rotator, "", log.LstdFlags)
	closer = rotator.Close
	mu.Unlock()
	Infof("Sending log messages to: %s", c.Logfile)
}
