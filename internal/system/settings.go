package system

import (
	"runtime"
	"runtime/debug"

	"github.com/alejoacosta74/cardbatch/internal/config"
	"github.com/sirupsen/logrus"
)

// Settings holds Go runtime tuning applied once at startup. A zero field
// leaves the corresponding runtime default untouched.
type Settings struct {
	MaxProcs    int
	GCPercent   int
	MaxThreads  int
	MemoryLimit int // in MB
	logger      *logrus.Entry
}

// FromConfig builds Settings from the system.* configuration keys.
func FromConfig(cfg config.SystemConfig) *Settings {
	return &Settings{
		MaxProcs:    cfg.MaxProcs,
		GCPercent:   cfg.GCPercent,
		MaxThreads:  cfg.MaxThreads,
		MemoryLimit: cfg.MemoryLimit,
		logger:      logrus.WithField("component", "system_settings"),
	}
}

// Apply configures the runtime and returns the previous values of every
// setting it changed, so they can be restored.
func (s *Settings) Apply() *Settings {
	prev := &Settings{logger: s.logger}

	if s.MaxProcs > 0 {
		prev.MaxProcs = runtime.GOMAXPROCS(s.MaxProcs)
		s.logger.Infof("GOMAXPROCS set to %d", s.MaxProcs)
	}
	if s.GCPercent != 0 {
		prev.GCPercent = debug.SetGCPercent(s.GCPercent)
		s.logger.Infof("GC percent set to %d", s.GCPercent)
	}
	if s.MaxThreads > 0 {
		prev.MaxThreads = debug.SetMaxThreads(s.MaxThreads)
		s.logger.Infof("Max threads set to %d", s.MaxThreads)
	}
	if s.MemoryLimit > 0 {
		// SetMemoryLimit reports bytes
		prev.MemoryLimit = int(debug.SetMemoryLimit(int64(s.MemoryLimit)*1024*1024) / (1024 * 1024))
		s.logger.Infof("Memory limit set to %dMB", s.MemoryLimit)
	}
	return prev
}
