// Package reporting writes per-build reports (markdown and JSON) and
// summarizes stored build history.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcus/bldr/internal/builder"
)

// Failure is a call failure in a report.
type Failure struct {
	Task      string `json:"task"`
	Call      int    `json:"call"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	Recovered bool   `json:"recovered"`
}

// TaskResult is one task in a report.
type TaskResult struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Status      builder.TaskStatus `json:"status"`
	Calls       int                `json:"calls"`
	Executed    int                `json:"executed"`
	Duration    time.Duration      `json:"duration,omitempty"`
	Failures    []Failure          `json:"failures,omitempty"`
}

// RunResults holds everything reported about one build.
type RunResults struct {
	ID        string            `json:"id"`
	Project   string            `json:"project,omitempty"`
	Profile   string            `json:"profile,omitempty"`
	Requested []string          `json:"requested_tasks,omitempty"`
	Status    builder.RunStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	Tasks     []TaskResult      `json:"tasks"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
}

// FromBuild converts a build outcome into report results. res may be nil
// when the build failed before running.
func FromBuild(id, project string, req builder.Request, res *builder.Result, runErr error) *RunResults {
	results := &RunResults{
		ID:        id,
		Project:   project,
		Profile:   req.Profile,
		Requested: req.Tasks,
		Status:    builder.RunFailed,
	}
	if len(req.Tasks) > 0 {
		results.Profile = ""
	}
	if runErr != nil {
		results.Error = runErr.Error()
	}
	if res == nil {
		results.StartTime = time.Now()
		results.EndTime = results.StartTime
		return results
	}

	results.Status = res.Status
	results.StartTime = res.StartTime
	results.EndTime = res.EndTime
	for _, t := range res.Tasks {
		tr := TaskResult{
			Name:        t.Name,
			Description: t.Description,
			Status:      t.Status,
			Calls:       t.Calls,
			Executed:    t.Executed,
			Duration:    t.Duration,
		}
		for _, f := range t.Failures {
			tr.Failures = append(tr.Failures, Failure{
				Task:      f.Task,
				Call:      f.Index + 1,
				Type:      f.Type,
				Reason:    f.Reason,
				Recovered: f.Recovered,
			})
		}
		results.Tasks = append(results.Tasks, tr)
	}
	return results
}

// Duration returns the wall time of the build.
func (r *RunResults) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Failures returns every failure across tasks in run order.
func (r *RunResults) Failures() []Failure {
	var out []Failure
	for _, t := range r.Tasks {
		out = append(out, t.Failures...)
	}
	return out
}

// reportName returns the base file name for a build's report. The build ID
// keeps builds started within the same second apart.
func reportName(results *RunResults, ext string) string {
	name := "build-" + results.StartTime.Format("2006-01-02-150405")
	if id := results.ID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		name += "-" + id
	}
	return name + ext
}

// DefaultRunResultsPath returns the JSON results path inside dir.
func DefaultRunResultsPath(dir string, results *RunResults) string {
	return filepath.Join(dir, reportName(results, ".json"))
}

// SaveRunResults writes structured run results to disk as JSON.
func SaveRunResults(results *RunResults, path string) error {
	if results == nil {
		return fmt.Errorf("results cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

// LoadRunResults reads structured run results from disk.
func LoadRunResults(path string) (*RunResults, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var results RunResults
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return &results, nil
}
