package converter

import (
	"context"
	"strconv"
	"sync"

	"github.com/jittakal/avroconvert/pkg/record"
)

// Run phases reported by Progress.
const (
	PhaseIdle       = "idle"
	PhaseListing    = "listing"
	PhaseConverting = "converting"
	PhaseDone       = "done"
)

// Progress tracks the state of the current run. It implements the health
// checker used by the metrics server.
type Progress struct {
	mu        sync.RWMutex
	runID     string
	phase     string
	total     int
	converted int
	failed    int
	skipped   int
}

// NewProgress creates an idle progress tracker.
func NewProgress() *Progress {
	return &Progress{phase: PhaseIdle}
}

func (p *Progress) begin(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = runID
	p.phase = PhaseListing
	p.total, p.converted, p.failed, p.skipped = 0, 0, 0, 0
}

func (p *Progress) converting(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = PhaseConverting
	p.total = total
}

func (p *Progress) record(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch status {
	case record.StatusSuccess:
		p.converted++
	case record.StatusSkipped:
		p.skipped++
	default:
		p.failed++
	}
}

func (p *Progress) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = PhaseDone
}

// Phase returns the current run phase.
func (p *Progress) Phase() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// Liveness always reports true while the process runs.
func (p *Progress) Liveness() bool {
	return true
}

// Readiness reports whether input files have been listed.
func (p *Progress) Readiness(_ context.Context) bool {
	phase := p.Phase()
	return phase == PhaseConverting || phase == PhaseDone
}

// GetStatus returns the run counters as strings.
func (p *Progress) GetStatus() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return map[string]string{
		"run_id":    p.runID,
		"phase":     p.phase,
		"total":     strconv.Itoa(p.total),
		"converted": strconv.Itoa(p.converted),
		"failed":    strconv.Itoa(p.failed),
		"skipped":   strconv.Itoa(p.skipped),
	}
}
