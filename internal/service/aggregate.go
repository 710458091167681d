package service

import (
	"cmp"
	"slices"

	"program_catalog/internal/domain"
)

// Aggregate folds per-source results into a report. The outcome does not
// depend on the order of results.
func Aggregate(results []domain.SourceResult) *domain.SyncReport {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b domain.SourceResult) int {
		return cmp.Compare(a.Source, b.Source)
	})

	report := &domain.SyncReport{
		Total:   len(sorted),
		Results: sorted,
	}
	if report.Results == nil {
		report.Results = []domain.SourceResult{}
	}

	for _, r := range sorted {
		if r.Status == domain.StatusSucceeded {
			report.Succeeded++
		}
		report.ProgramCount += r.Count
		report.SoftErrors += r.SoftErrors
	}
	report.Failed = report.Total - report.Succeeded

	report.State = domain.RunCompleted
	if report.Failed > 0 {
		report.State = domain.RunPartiallyFailed
	}
	return report
}
