package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/history"
)

// ProfileStats aggregates builds of one profile. Explicit task builds are
// grouped under the empty profile name.
type ProfileStats struct {
	Profile       string
	Builds        int
	Succeeded     int
	Failed        int
	TotalDuration time.Duration
	LastBuild     time.Time
	LastStatus    builder.RunStatus
}

// SuccessRate returns the fraction of builds that succeeded.
func (p ProfileStats) SuccessRate() float64 {
	if p.Builds == 0 {
		return 0
	}
	return float64(p.Succeeded) / float64(p.Builds)
}

// AverageDuration returns the mean build duration.
func (p ProfileStats) AverageDuration() time.Duration {
	if p.Builds == 0 {
		return 0
	}
	return p.TotalDuration / time.Duration(p.Builds)
}

// TaskFailures counts failures of one task.
type TaskFailures struct {
	Task      string
	Fatal     int
	Recovered int
}

// Summary aggregates a set of stored builds.
type Summary struct {
	Builds       int
	Succeeded    int
	Failed       int
	Profiles     []ProfileStats
	FailingTasks []TaskFailures
}

// Summarize aggregates records. Profiles are sorted by build count, failing
// tasks by total failures.
func Summarize(records []history.Record) *Summary {
	s := &Summary{}
	profiles := map[string]*ProfileStats{}
	failures := map[string]*TaskFailures{}

	for _, rec := range records {
		s.Builds++
		ps, ok := profiles[rec.Profile]
		if !ok {
			ps = &ProfileStats{Profile: rec.Profile}
			profiles[rec.Profile] = ps
		}
		ps.Builds++
		ps.TotalDuration += rec.Duration()
		if rec.Status == builder.RunSucceeded {
			s.Succeeded++
			ps.Succeeded++
		} else {
			s.Failed++
			ps.Failed++
		}
		if rec.StartTime.After(ps.LastBuild) {
			ps.LastBuild = rec.StartTime
			ps.LastStatus = rec.Status
		}

		for _, f := range rec.Failures {
			tf, ok := failures[f.Task]
			if !ok {
				tf = &TaskFailures{Task: f.Task}
				failures[f.Task] = tf
			}
			if f.Recovered {
				tf.Recovered++
			} else {
				tf.Fatal++
			}
		}
	}

	for _, ps := range profiles {
		s.Profiles = append(s.Profiles, *ps)
	}
	sort.Slice(s.Profiles, func(i, j int) bool {
		if s.Profiles[i].Builds != s.Profiles[j].Builds {
			return s.Profiles[i].Builds > s.Profiles[j].Builds
		}
		return s.Profiles[i].Profile < s.Profiles[j].Profile
	})

	for _, tf := range failures {
		s.FailingTasks = append(s.FailingTasks, *tf)
	}
	sort.Slice(s.FailingTasks, func(i, j int) bool {
		ti := s.FailingTasks[i].Fatal + s.FailingTasks[i].Recovered
		tj := s.FailingTasks[j].Fatal + s.FailingTasks[j].Recovered
		if ti != tj {
			return ti > tj
		}
		return s.FailingTasks[i].Task < s.FailingTasks[j].Task
	})

	return s
}

// RenderSummary renders s as markdown. now anchors relative times.
func RenderSummary(s *Summary, now time.Time) string {
	var buf bytes.Buffer
	buf.WriteString("# Bldr Build Summary\n\n")

	if s == nil || s.Builds == 0 {
		buf.WriteString("No builds recorded.\n")
		return buf.String()
	}

	fmt.Fprintf(&buf, "- Builds: %s (%s succeeded, %s failed)\n\n",
		formatCount(s.Builds), formatCount(s.Succeeded), formatCount(s.Failed))

	buf.WriteString("## Profiles\n")
	for _, p := range s.Profiles {
		name := p.Profile
		if name == "" {
			name = "(explicit tasks)"
		}
		fmt.Fprintf(&buf, "- %s: %s builds, %.0f%% succeeded, avg %s, last %s %s\n",
			name,
			formatCount(p.Builds),
			p.SuccessRate()*100,
			formatDuration(p.AverageDuration()),
			p.LastStatus,
			humanize.RelTime(p.LastBuild, now, "ago", "from now"),
		)
	}
	buf.WriteString("\n")

	if len(s.FailingTasks) > 0 {
		buf.WriteString("## Failing Tasks\n")
		for _, tf := range s.FailingTasks {
			fmt.Fprintf(&buf, "- %s: %d fatal, %d recovered\n", tf.Task, tf.Fatal, tf.Recovered)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}
