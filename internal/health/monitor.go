// Package health tracks process uptime and the email agent's last cycle and
// serves them at /health.
package health

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status is the /health response body.
type Status struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	EmailAgent       string `json:"email_agent"`
	LastCycleTime    string `json:"last_cycle_time,omitempty"`
	LastCycleStatus  string `json:"last_cycle_status"`
	LastCycleCreated int    `json:"last_cycle_created"`
	FailedCycles     int    `json:"consecutive_failed_cycles"`
}

// Monitor records email agent cycles. Safe for concurrent use.
type Monitor struct {
	mu           sync.RWMutex
	startTime    time.Time
	agentEnabled bool
	lastCycle    time.Time
	lastStatus   string
	lastCreated  int
	failures     int
	now          func() time.Time
}

// NewMonitor creates a monitor. agentEnabled reports whether the email agent
// runs in this process at all.
func NewMonitor(agentEnabled bool) *Monitor {
	return &Monitor{
		startTime:    time.Now(),
		agentEnabled: agentEnabled,
		lastStatus:   "not started",
		now:          time.Now,
	}
}

// RecordCycle stores the outcome of one email cycle. A nil err is a success.
func (m *Monitor) RecordCycle(created int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCycle = m.now()
	m.lastCreated = created
	if err != nil {
		m.lastStatus = "error: " + err.Error()
		m.failures++
		return
	}
	m.lastStatus = "success"
	m.failures = 0
}

// GetStatus returns a snapshot. The process is "degraded" after three failed
// cycles in a row; it keeps serving either way.
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		Status:           "healthy",
		Uptime:           m.now().Sub(m.startTime).Round(time.Second).String(),
		EmailAgent:       "disabled",
		LastCycleStatus:  m.lastStatus,
		LastCycleCreated: m.lastCreated,
		FailedCycles:     m.failures,
	}
	if m.agentEnabled {
		s.EmailAgent = "running"
	}
	if !m.lastCycle.IsZero() {
		s.LastCycleTime = m.lastCycle.UTC().Format(time.RFC3339)
	}
	if m.failures >= 3 {
		s.Status = "degraded"
	}
	return s
}

// Handler serves GetStatus as JSON.
func Handler(m *Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, m.GetStatus())
	}
}
