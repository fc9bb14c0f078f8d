package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidemark/tidemark/internal/exec"
	"gopkg.in/yaml.v3"
)

func TestFinishDerivesSuccess(t *testing.T) {
	tests := []struct {
		name    string
		targets []TargetReport
		want    bool
	}{
		{
			name:    "all reconciled",
			targets: []TargetReport{{Target: "a"}, {Target: "b", NoChange: true}},
			want:    true,
		},
		{
			name:    "empty run",
			targets: nil,
			want:    true,
		},
		{
			name:    "pipeline error",
			targets: []TargetReport{{Target: "a", Error: "boom"}},
			want:    false,
		},
		{
			name: "execution error",
			targets: []TargetReport{{Target: "a", Execution: &exec.Result{
				Err: os.ErrClosed, ErrorMsg: "closed",
			}}},
			want: false,
		},
		{
			name:    "skipped target",
			targets: []TargetReport{{Target: "a"}, {Target: "b", Skipped: true}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRun()
			r.Targets = tt.targets
			r.Finish()
			if r.Success != tt.want {
				t.Errorf("Success = %v, want %v", r.Success, tt.want)
			}
			if r.FinishedAt.Before(r.StartedAt) {
				t.Error("FinishedAt before StartedAt")
			}
		})
	}
}

func TestSummaryCounts(t *testing.T) {
	r := NewRun()
	r.Targets = []TargetReport{
		{Target: "a"},
		{Target: "b", Error: "boom"},
		{Target: "c", Skipped: true},
	}
	r.Finish()

	s := r.Summary()
	if !strings.Contains(s, "1 target(s) reconciled") ||
		!strings.Contains(s, "1 failed") ||
		!strings.Contains(s, "1 skipped") {
		t.Errorf("Summary() = %q", s)
	}
	if !strings.HasPrefix(s, "run failed") {
		t.Errorf("Summary() = %q", s)
	}
}

func TestWriteRoundTrips(t *testing.T) {
	r := NewRun()
	r.Targets = []TargetReport{
		{Target: "a", Dialect: "sqlite", Statements: []string{"CREATE TABLE t (id int)"}},
	}
	r.Finish()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "report.yaml")
	if err := r.WriteYAML(yamlPath); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML RunReport
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if len(fromYAML.Targets) != 1 || fromYAML.Targets[0].Target != "a" {
		t.Errorf("yaml round trip: %+v", fromYAML)
	}

	jsonPath := filepath.Join(dir, "report.json")
	if err := r.WriteJSON(jsonPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON RunReport
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	if !strings.Contains(string(data), `"started_at"`) {
		t.Error("json should use snake_case keys")
	}
	if len(fromJSON.Targets) != 1 || fromJSON.Targets[0].Statements[0] != "CREATE TABLE t (id int)" {
		t.Errorf("json round trip: %+v", fromJSON)
	}
}
