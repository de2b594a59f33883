package monitoring

import (
	"sync"

	"github.com/semops-labs/som/core/pkg/config"
)

var (
	globalMu sync.Mutex
	global   *Monitor
)

// Init builds the process-wide monitor and installs it as the global.
// Reinitialization shuts down and replaces the previous global.
func Init(cfg config.MonitoringConfig, opts ...Option) *Monitor {
	m := New(cfg, opts...)

	globalMu.Lock()
	prev := global
	global = m
	globalMu.Unlock()

	if prev != nil {
		prev.Shutdown()
	}
	return m
}

// Active returns the global monitor, or nil before Init.
func Active() *Monitor {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}
