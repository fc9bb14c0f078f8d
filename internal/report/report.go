package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidemark/tidemark/internal/exec"
	"github.com/tidemark/tidemark/internal/lint"
	"github.com/tidemark/tidemark/internal/revision"
	"gopkg.in/yaml.v3"
)

// RunReport is the structured record of one multi-target run. The core
// emits this; rendering it into human-facing text is the CLI's concern.
type RunReport struct {
	StartedAt  time.Time      `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at" json:"finished_at"`
	Success    bool           `yaml:"success" json:"success"`
	Targets    []TargetReport `yaml:"targets" json:"targets"`
}

// TargetReport is the per-target slice of a run.
type TargetReport struct {
	Target   string `yaml:"target" json:"target"`
	Dialect  string `yaml:"dialect" json:"dialect"`
	Skipped  bool   `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	NoChange bool   `yaml:"no_change,omitempty" json:"no_change,omitempty"`

	Changes    []string         `yaml:"changes,omitempty" json:"changes,omitempty"`
	Statements []string         `yaml:"statements,omitempty" json:"statements,omitempty"`
	Findings   []lint.Finding   `yaml:"findings,omitempty" json:"findings,omitempty"`
	Execution  *exec.Result     `yaml:"execution,omitempty" json:"execution,omitempty"`
	Revisions  *revision.Result `yaml:"revisions,omitempty" json:"revisions,omitempty"`
	Error      string           `yaml:"error,omitempty" json:"error,omitempty"`
}

// NewRun starts a report stamped with the current time.
func NewRun() *RunReport {
	return &RunReport{StartedAt: time.Now()}
}

// Fail finishes the report as failed regardless of target outcomes, for
// errors that abort a run before any target work happens.
func (r *RunReport) Fail() *RunReport {
	r.FinishedAt = time.Now()
	r.Success = false
	return r
}

// Failed reports whether this target ended in error.
func (t *TargetReport) Failed() bool {
	return t.Error != "" ||
		(t.Execution != nil && t.Execution.Failed()) ||
		(t.Revisions != nil && t.Revisions.Failed())
}

// Finish stamps the end time and derives overall success: every
// non-skipped target must have reached its intended state.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
	r.Success = true
	for i := range r.Targets {
		t := &r.Targets[i]
		if t.Skipped || t.Failed() {
			r.Success = false
			return
		}
	}
}

// WriteYAML writes the report as YAML.
func (r *RunReport) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return write(path, data)
}

// WriteJSON writes the report as indented JSON.
func (r *RunReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return write(path, append(data, '\n'))
}

func write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Summary returns a one-line human summary for CLI output.
func (r *RunReport) Summary() string {
	var applied, failed, skipped int
	for i := range r.Targets {
		t := &r.Targets[i]
		switch {
		case t.Skipped:
			skipped++
		case t.Failed():
			failed++
		default:
			applied++
		}
	}
	status := "succeeded"
	if !r.Success {
		status = "failed"
	}
	return fmt.Sprintf("run %s: %d target(s) reconciled, %d failed, %d skipped in %s",
		status, applied, failed, skipped, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
