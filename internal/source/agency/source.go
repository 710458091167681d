// Package agency implements adapters for agency-operated program feeds. Each
// agency has its own authentication and pagination convention.
package agency

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"program_catalog/internal/domain"
	"program_catalog/internal/source/httpx"
	"program_catalog/internal/source/payload"
)

// Config holds agency source configuration.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	MaxPages int
	HTTP     httpx.Config
}

type base struct {
	cfg    Config
	client *httpx.Client
	logger *slog.Logger
}

func newBase(id domain.DataSource, cfg Config, logger *slog.Logger) base {
	logger = logger.With("source", id)
	return base{cfg: cfg, client: httpx.New(cfg.HTTP, logger), logger: logger}
}

func (b *base) Release() error {
	return b.client.Release()
}

func (b *base) requireKey() error {
	if b.cfg.APIKey == "" {
		return fmt.Errorf("%w: api key not configured", domain.ErrSourceUnavailable)
	}
	return nil
}

// Kosmes reads the KOSMES feed: X-API-Key header, cursor pagination.
type Kosmes struct {
	base
}

func NewKosmes(cfg Config, logger *slog.Logger) *Kosmes {
	return &Kosmes{base: newBase(domain.SourceKosmes, cfg, logger)}
}

func (s *Kosmes) ID() domain.DataSource { return domain.SourceKosmes }
func (s *Kosmes) Name() string          { return "KOSMES Policy Funds" }

func (s *Kosmes) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	if err := s.requireKey(); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("X-API-Key", s.cfg.APIKey)
	header.Set("Accept", "application/json")

	var records []domain.RawRecord
	cursor := ""

	for page := 0; page < s.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(s.cfg.PageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp kosmesPage
		if err := s.client.GetJSON(ctx, s.cfg.BaseURL+"?"+q.Encode(), header, &resp); err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		for _, item := range resp.Data {
			records = append(records, mapKosmes(item))
		}

		s.logger.Debug("fetched page", "page", page, "items", len(resp.Data), "total", len(records))

		if resp.NextCursor == nil || *resp.NextCursor == "" || *resp.NextCursor == cursor {
			break
		}
		cursor = *resp.NextCursor
	}

	return records, nil
}

func mapKosmes(item map[string]any) domain.RawRecord {
	return domain.RawRecord{
		ExternalID:     payload.Str(item, "program_id", "id"),
		Title:          payload.Str(item, "title"),
		Description:    payload.Str(item, "summary", "description"),
		Category:       payload.Str(item, "fund_type"),
		TargetAudience: payload.List(item, "eligible_companies"),
		TargetLocation: payload.List(item, "regions"),
		Keywords:       payload.List(item, "tags"),
		BudgetRange:    payload.Str(item, "loan_limit"),
		Deadline:       payload.Str(item, "deadline"),
		StartDate:      payload.Str(item, "apply_start"),
		EndDate:        payload.Str(item, "apply_end"),
		SourceURL:      payload.Str(item, "url"),
		AttachmentURL:  payload.Str(item, "attachment_url"),
		Payload:        item,
	}
}

// Semas reads the SEMAS feed: bearer token, offset/limit pagination.
type Semas struct {
	base
}

func NewSemas(cfg Config, logger *slog.Logger) *Semas {
	return &Semas{base: newBase(domain.SourceSemas, cfg, logger)}
}

func (s *Semas) ID() domain.DataSource { return domain.SourceSemas }
func (s *Semas) Name() string          { return "SEMAS Small Business Support" }

func (s *Semas) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	if err := s.requireKey(); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("Accept", "application/json")

	var records []domain.RawRecord
	offset := 0

	for page := 0; page < s.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(s.cfg.PageSize))

		var resp semasPage
		if err := s.client.GetJSON(ctx, s.cfg.BaseURL+"?"+q.Encode(), header, &resp); err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		for _, item := range resp.Programs {
			records = append(records, mapSemas(item))
		}

		s.logger.Debug("fetched page", "page", page, "items", len(resp.Programs), "total", len(records))

		offset += len(resp.Programs)
		if len(resp.Programs) == 0 || offset >= resp.Total {
			break
		}
	}

	return records, nil
}

func mapSemas(item map[string]any) domain.RawRecord {
	org := payload.Object(item, "organization")
	period := payload.Object(item, "application_period")

	return domain.RawRecord{
		ExternalID:     payload.Str(item, "seq"),
		Title:          payload.Str(item, "name"),
		Description:    payload.Str(item, "content"),
		Category:       payload.Str(item, "category"),
		TargetAudience: payload.List(item, "targets"),
		TargetLocation: payload.List(org, "region"),
		Keywords:       payload.List(item, "keywords"),
		BudgetRange:    payload.Str(item, "budget"),
		StartDate:      payload.Str(period, "from"),
		EndDate:        payload.Str(period, "to"),
		SourceURL:      payload.Str(item, "link"),
		AttachmentURL:  payload.Str(item, "file_url"),
		Payload:        item,
	}
}
