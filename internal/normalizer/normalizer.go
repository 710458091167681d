// Package normalizer maps provider-specific raw records into the canonical
// Program shape.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"program_catalog/internal/domain"
)

// dateLayouts are tried in order. Providers mix ISO dates, compact dates and
// dotted Korean-style dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02",
	"2006. 01. 02",
	"2006/01/02",
	"20060102",
}

var seoul = loadLocation("Asia/Seoul")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Normalize converts one raw record. ID, RegisteredAt and LastSyncedAt are
// left zero; they belong to the store and the orchestrator.
func Normalize(raw domain.RawRecord, ds domain.DataSource) (domain.Program, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return domain.Program{}, &domain.SoftRecordError{
			Source: ds,
			Ref:    strings.TrimSpace(raw.ExternalID),
			Reason: "missing title",
		}
	}

	p := domain.Program{
		DataSource:     ds,
		SourceAPIID:    SourceAPIID(raw, ds),
		Title:          title,
		Description:    optional(raw.Description),
		Category:       optional(raw.Category),
		TargetAudience: CleanList(raw.TargetAudience),
		TargetLocation: CleanList(raw.TargetLocation),
		Keywords:       CleanList(raw.Keywords),
		BudgetRange:    optional(raw.BudgetRange),
		Deadline:       ParseDate(raw.Deadline),
		StartDate:      ParseDate(raw.StartDate),
		EndDate:        ParseDate(raw.EndDate),
		SourceURL:      optional(raw.SourceURL),
		AttachmentURL:  optional(raw.AttachmentURL),
		RawData:        raw.Payload,
		SyncStatus:     domain.ProgramActive,
	}

	if raw.Period != "" && (p.StartDate == nil || p.EndDate == nil) {
		start, end := splitPeriod(raw.Period)
		if p.StartDate == nil {
			p.StartDate = ParseDate(start)
		}
		if p.EndDate == nil {
			p.EndDate = ParseDate(end)
		}
	}
	if p.Deadline == nil && p.EndDate != nil {
		d := *p.EndDate
		p.Deadline = &d
	}

	return p, nil
}

// NormalizeBatch normalizes every record it can. Records that fail are
// returned as errors alongside the successful programs.
func NormalizeBatch(records []domain.RawRecord, ds domain.DataSource) ([]domain.Program, []error) {
	programs := make([]domain.Program, 0, len(records))
	var errs []error
	for _, r := range records {
		p, err := Normalize(r, ds)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		programs = append(programs, p)
	}
	return programs, errs
}

// SourceAPIID returns the provider id, or a deterministic hash of the stable
// fields when the provider does not supply one.
func SourceAPIID(raw domain.RawRecord, ds domain.DataSource) string {
	if id := strings.TrimSpace(raw.ExternalID); id != "" {
		return id
	}

	start := raw.StartDate
	if start == "" {
		start = raw.Period
	}
	h := sha256.New()
	for _, part := range []string{
		string(ds),
		strings.TrimSpace(raw.Title),
		strings.TrimSpace(raw.SourceURL),
		strings.TrimSpace(start),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return "h_" + hex.EncodeToString(h.Sum(nil)[:16])
}

// ParseDate returns nil for empty or unparseable input.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, seoul)
		if err == nil {
			return &t
		}
	}
	return nil
}

// CleanList splits comma-joined entries, trims them and drops empties and
// duplicates, keeping first-seen order.
func CleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func splitPeriod(period string) (string, string) {
	for _, sep := range []string{"~", " - "} {
		if before, after, ok := strings.Cut(period, sep); ok {
			return strings.TrimSpace(before), strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(period), ""
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
