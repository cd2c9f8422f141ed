package commands

import (
	"context"

	"github.com/marcus/bldr/internal/builder"
	"github.com/marcus/bldr/internal/history"
	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/reporting"
)

// recordBuild stores the build in history and writes the markdown and JSON
// reports, as enabled by configuration and flags. It returns the report
// path, or "" when no report was written. Failures are logged only.
func recordBuild(ctx context.Context, p *project, opts buildOptions, res *builder.Result, runErr error) string {
	log := logging.Component("build")
	// Record interrupted builds too.
	ctx = context.WithoutCancel(ctx)

	rec := history.NewRecord(p.name(), opts.trigger, opts.req, res, runErr)

	var store *history.Store
	if p.cfg.History.Enabled && !opts.noHistory {
		var err error
		store, err = history.Open(p.cfg.History.Path)
		if err != nil {
			log.Warnf("open history: %v", err)
		} else {
			defer func() { _ = store.Close() }()
			if err := store.Save(ctx, rec); err != nil {
				log.Warnf("save history: %v", err)
				store = nil
			}
		}
	}

	if !p.cfg.Reporting.Enabled || opts.noReport {
		return ""
	}

	results := reporting.FromBuild(rec.ID, p.name(), opts.req, res, runErr)
	dir := p.cfg.Reporting.Dir

	resultsPath := reporting.DefaultRunResultsPath(dir, results)
	if err := reporting.SaveRunResults(results, resultsPath); err != nil {
		log.Warnf("run results save: %v", err)
	} else {
		log.Infof("run results saved: %s", resultsPath)
	}

	reportPath := reporting.DefaultRunReportPath(dir, results)
	if err := reporting.SaveRunReport(results, reportPath, logging.Get().CurrentLogPath()); err != nil {
		log.Warnf("run report save: %v", err)
		return ""
	}
	log.Infof("run report saved: %s", reportPath)

	if store != nil {
		if err := store.SetReportPath(ctx, rec.ID, reportPath); err != nil {
			log.Warnf("record report path: %v", err)
		}
	}
	return reportPath
}
