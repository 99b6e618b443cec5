package panels

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
)

// IntegrityMonitor periodically recomputes panel data hashes and
// compares them to manifest.json, per spec.md §4.7's closing
// paragraph. A mismatch increments a counter and zeroes the
// integrity_ok gauge; strict mode exits the process on first mismatch.
type IntegrityMonitor struct {
	dir      string
	interval time.Duration
	strict   bool
	log      *logging.Logger
	handles  *metrics.Handles
	exit     func(code int)
}

// NewIntegrityMonitor builds a monitor. exit defaults to os.Exit; tests
// override it to observe strict-mode behavior without killing the
// test process.
func NewIntegrityMonitor(dir string, interval time.Duration, strict bool, log *logging.Logger, handles *metrics.Handles) *IntegrityMonitor {
	return &IntegrityMonitor{dir: dir, interval: interval, strict: strict, log: log, handles: handles, exit: os.Exit}
}

// Check runs one integrity pass: reads manifest.json, recomputes each
// listed panel's data hash from the panel file on disk, and compares.
// Returns false if any panel's data no longer matches the manifest.
func (m *IntegrityMonitor) Check() (bool, error) {
	manifestPath := filepath.Join(m.dir, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return true, nil // no manifest yet (first cycle not run) is not a mismatch
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return false, err
	}

	ok := true
	for file, wantHash := range manifest.Hashes {
		panelData, err := os.ReadFile(filepath.Join(m.dir, file))
		if err != nil {
			ok = false
			continue
		}
		var env Envelope
		if err := json.Unmarshal(panelData, &env); err != nil {
			ok = false
			continue
		}
		gotHash, err := FullHash(env.Data)
		if err != nil || gotHash != wantHash {
			ok = false
		}
	}
	return ok, nil
}

// Run blocks, checking on a ticker until ctx is cancelled. In strict
// mode, the first mismatch calls exit(1) instead of returning.
func (m *IntegrityMonitor) Run(ctx context.Context) {
	interval := m.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *IntegrityMonitor) tick() {
	ok, err := m.Check()
	if err != nil {
		if m.log != nil {
			m.log.WithError(err).Warn("panel integrity check failed")
		}
		return
	}
	if m.handles != nil {
		if ok {
			m.handles.PanelIntegrityOK.Set(1)
		} else {
			m.handles.PanelIntegrityOK.Set(0)
		}
	}
	if !ok {
		if m.handles != nil {
			m.handles.PanelIntegrityMismatch.Inc()
		}
		if m.log != nil {
			m.log.Warn("panel integrity mismatch detected")
		}
		if m.strict {
			m.exit(1)
		}
	}
}
