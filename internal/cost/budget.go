package cost

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrBudgetExceeded is returned by Check when a token budget is used up.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates the run passed AlertThreshold of its budget
	BudgetWarning
	// BudgetExceeded indicates the run budget is used up
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Tracker counts tokens for one run. It is safe for concurrent use.
// Nothing is persisted; each run starts from zero.
type Tracker struct {
	config *Config
	mu     sync.Mutex

	inputTokens   int64
	outputTokens  int64
	folderTokens  map[string]int64
	warningLogged bool
}

// NewTracker creates a new token budget tracker
func NewTracker(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Tracker{
		config:       cfg,
		folderTokens: make(map[string]int64),
	}, nil
}

// RecordUsage adds one call's usage for folder and returns the run status.
func (t *Tracker) RecordUsage(folder string, inputTokens, outputTokens int64) BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inputTokens += inputTokens
	t.outputTokens += outputTokens
	t.folderTokens[folder] += inputTokens + outputTokens

	status := t.statusLocked()
	if status == BudgetWarning && !t.warningLogged {
		t.warningLogged = true
		fmt.Fprintf(os.Stderr, "warning: token budget at %.0f%% (%d/%d tokens)\n",
			100*float64(t.totalLocked())/float64(t.config.MaxTokensPerRun),
			t.totalLocked(), t.config.MaxTokensPerRun)
	}
	return status
}

// Check returns nil if another call for folder fits in the budget, or an
// error wrapping ErrBudgetExceeded that names the limit.
func (t *Tracker) Check(folder string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.MaxTokensPerRun > 0 && t.totalLocked() >= t.config.MaxTokensPerRun {
		return fmt.Errorf("%w: run used %d/%d tokens", ErrBudgetExceeded, t.totalLocked(), t.config.MaxTokensPerRun)
	}
	if t.config.MaxTokensPerFolder > 0 && t.folderTokens[folder] >= t.config.MaxTokensPerFolder {
		return fmt.Errorf("%w: folder %s used %d/%d tokens", ErrBudgetExceeded, folder, t.folderTokens[folder], t.config.MaxTokensPerFolder)
	}
	return nil
}

// Status returns the current run status without recording usage
func (t *Tracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

// Stats is a snapshot of run usage.
type Stats struct {
	Status       BudgetStatus `json:"-"`
	InputTokens  int64        `json:"input_tokens"`
	OutputTokens int64        `json:"output_tokens"`
	TotalTokens  int64        `json:"total_tokens"`
	EstimatedUSD float64      `json:"estimated_usd"`
}

// GetStats returns current usage and the estimated cost.
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Status:       t.statusLocked(),
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		TotalTokens:  t.totalLocked(),
		EstimatedUSD: t.calculateCost(t.inputTokens, t.outputTokens),
	}
}

func (t *Tracker) totalLocked() int64 {
	return t.inputTokens + t.outputTokens
}

func (t *Tracker) statusLocked() BudgetStatus {
	if t.config.MaxTokensPerRun <= 0 {
		return BudgetHealthy
	}
	used := t.totalLocked()
	switch {
	case used >= t.config.MaxTokensPerRun:
		return BudgetExceeded
	case float64(used) >= t.config.AlertThreshold*float64(t.config.MaxTokensPerRun):
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}

// calculateCost estimates USD for the given token counts
func (t *Tracker) calculateCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * t.config.InputTokenCost
	outputCost := float64(outputTokens) / 1_000_000 * t.config.OutputTokenCost
	return inputCost + outputCost
}
