// Package report records what a generation run did to each folder.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome for one folder.
type Status string

const (
	// StatusGenerated means the output file was written
	StatusGenerated Status = "generated"
	// StatusDryRun means a README was generated but not written
	StatusDryRun Status = "dry_run"
	// StatusSkippedMarker means the folder holds the skip marker
	StatusSkippedMarker Status = "skipped_marker"
	// StatusSkippedEmpty means no readable text files were found
	StatusSkippedEmpty Status = "skipped_empty"
	// StatusFailed means reading, the API call or the write failed
	StatusFailed Status = "failed"
)

// FolderResult is one folder's line in the report.
type FolderResult struct {
	Folder       string        `json:"folder"`
	Status       Status        `json:"status"`
	OutputPath   string        `json:"output_path,omitempty"`
	Change       string        `json:"change,omitempty"`
	FilesRead    int           `json:"files_read"`
	FilesDropped int           `json:"files_dropped,omitempty"`
	PromptChars  int           `json:"prompt_chars,omitempty"`
	InputTokens  int64         `json:"input_tokens,omitempty"`
	OutputTokens int64         `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Run is the report for one invocation. Add is safe for concurrent use.
type Run struct {
	ID         string         `json:"id"`
	Root       string         `json:"root"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []FolderResult `json:"results"`
	CommitHash string         `json:"commit_hash,omitempty"`

	mu sync.Mutex
}

// NewRun starts a report with a fresh run ID.
func NewRun(root, provider, model string, dryRun bool) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Root:      root,
		Provider:  provider,
		Model:     model,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// Add appends a folder result.
func (r *Run) Add(res FolderResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, res)
}

// Finish stamps the end time and sorts results by folder name.
func (r *Run) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	sort.SliceStable(r.Results, func(i, j int) bool { return r.Results[i].Folder < r.Results[j].Folder })
}

// Counts returns the number of results per status.
func (r *Run) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Failed returns the failed results.
func (r *Run) Failed() []FolderResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FolderResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Written returns output paths of folders whose file was written.
func (r *Run) Written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, res := range r.Results {
		if res.Status == StatusGenerated && res.OutputPath != "" {
			out = append(out, res.OutputPath)
		}
	}
	return out
}

// Tokens returns total input and output tokens.
func (r *Run) Tokens() (input, output int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.Results {
		input += res.InputTokens
		output += res.OutputTokens
	}
	return input, output
}

// WriteJSON writes the report to path.
func (r *Run) WriteJSON(path string) error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
