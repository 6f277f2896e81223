// Package ftpmon implements background connectivity monitoring of the
// configured FTP targets.
package ftpmon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/scanops/transmission-monitor/internal/config"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// State is the cached connectivity state of one target.
type State string

const (
	// StateOnline means the last probe connected within the timeout.
	StateOnline State = "ONLINE"
	// StateOffline means the last probe errored or timed out. Configured
	// targets start OFFLINE until the first probe completes (fail-closed).
	StateOffline State = "OFFLINE"
	// StateNotConfigured means the target slot has no host and is never
	// probed.
	StateNotConfigured State = "NOT_CONFIGURED"
)

// minPingInterval floors the configured interval so a bad setting cannot
// spin the probe loop.
const minPingInterval = 5 * time.Second

// Status is one cached snapshot for a target, refreshed in place on every
// sweep. No history is retained.
type Status struct {
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Monitor owns the probe loop and the cached status snapshot. The monitor
// goroutine is the single writer; Snapshot readers never block it for long
// and never trigger a probe themselves.
type Monitor struct {
	cfg     config.FTPConfig
	logger  *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	mu       sync.RWMutex
	statuses []Status

	pingLog *lumberjack.Logger
}

// New creates a Monitor for the configured targets. Configured slots start
// OFFLINE, unconfigured ones NOT_CONFIGURED. Sweep results are appended to a
// size-rotated ping status log under logsDir for diagnostics.
func New(cfg config.FTPConfig, logsDir string, logger *zap.SugaredLogger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Monitor{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		pingLog: &lumberjack.Logger{
			Filename:   filepath.Join(logsDir, "ping_status.log"),
			MaxSize:    100, // megabytes
			MaxBackups: 5,
		},
	}

	statuses := make([]Status, 0, len(cfg.Targets))
	for i, target := range cfg.Targets {
		st := Status{
			Name: fmt.Sprintf("FTP Server %d", i+1),
			Host: target.Host,
			Port: target.Port,
		}
		if target.Host == "" {
			st.State = StateNotConfigured
		} else {
			st.State = StateOffline
		}
		statuses = append(statuses, st)
	}
	m.statuses = statuses

	return m
}

// Start launches the probe loop.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.mu.Unlock()

	m.logger.Infow("Starting FTP connectivity monitor",
		"interval", m.interval().String(),
		"targets", len(m.cfg.Targets),
	)

	m.wg.Add(1)
	go m.run()

	return nil
}

// Stop terminates the probe loop and closes the ping log.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	_ = m.pingLog.Close()
	m.logger.Info("FTP connectivity monitor stopped")
}

// Snapshot returns a copy of the cached statuses. It never probes.
func (m *Monitor) Snapshot() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]Status, len(m.statuses))
	copy(snapshot, m.statuses)
	return snapshot
}

// PollNow runs one synchronous sweep and returns the fresh snapshot.
func (m *Monitor) PollNow() []Status {
	m.pollOnce()
	return m.Snapshot()
}

// run probes all targets on every tick. Individual probe failures mark the
// target OFFLINE and are logged; nothing stops the loop short of Stop.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	// First sweep immediately rather than one interval in.
	m.pollOnce()

	for {
		select {
		case <-ticker.C:
			m.pollOnce()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) pollOnce() {
	checked := time.Now()
	statuses := make([]Status, 0, len(m.cfg.Targets))

	for i, target := range m.cfg.Targets {
		st := Status{
			Name:        fmt.Sprintf("FTP Server %d", i+1),
			Host:        target.Host,
			Port:        target.Port,
			LastChecked: checked,
		}

		if target.Host == "" {
			st.State = StateNotConfigured
		} else if err := m.probe(target); err != nil {
			st.State = StateOffline
			st.Error = err.Error()
			m.logger.Warnw("FTP probe failed",
				"host", target.Host,
				"port", target.Port,
				"error", err,
			)
		} else {
			st.State = StateOnline
		}

		statuses = append(statuses, st)
	}

	m.mu.Lock()
	m.statuses = statuses
	m.mu.Unlock()

	m.writePingLog(statuses, checked)
}

// probe attempts one bounded-timeout TCP connection to the target.
func (m *Monitor) probe(target config.FTPTarget) error {
	timeout := time.Duration(m.cfg.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := net.DialTimeout("tcp", target.Addr(), timeout)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// writePingLog appends one JSON line per sweep to the rotating ping log.
func (m *Monitor) writePingLog(statuses []Status, checked time.Time) {
	type result struct {
		Host  string `json:"host"`
		Port  int    `json:"port"`
		State State  `json:"state"`
		Error string `json:"error,omitempty"`
	}

	entry := struct {
		Timestamp string   `json:"timestamp"`
		Results   []result `json:"results"`
	}{
		Timestamp: checked.UTC().Format(time.RFC3339),
	}
	for _, st := range statuses {
		entry.Results = append(entry.Results, result{
			Host:  st.Host,
			Port:  st.Port,
			State: st.State,
			Error: st.Error,
		})
	}

	blob, err := json.Marshal(entry)
	if err != nil {
		m.logger.Errorw("Failed to marshal ping log entry", "error", err)
		return
	}

	if _, err := m.pingLog.Write(append(blob, '\n')); err != nil {
		m.logger.Errorw("Failed to write ping log", "error", err)
	}
}

func (m *Monitor) interval() time.Duration {
	interval := time.Duration(m.cfg.PingInterval) * time.Second
	if interval < minPingInterval {
		interval = minPingInterval
	}
	return interval
}
