// Package scrape implements adapters for programs published only as HTML
// boards. Each board is described by a Template; a layout change surfaces
// as domain.ErrParse rather than as an empty result.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"program_catalog/internal/domain"
	"program_catalog/internal/source/httpx"
)

// Template describes a fixed board layout.
type Template struct {
	ID   domain.DataSource
	Name string
	// Container must exist on every page; its absence means the layout changed.
	Container string
	// Rows selects one element per program inside Container.
	Rows string
	// Parse maps a row to a raw record. ok=false skips placeholder rows.
	Parse func(row *goquery.Selection, page *url.URL) (rec domain.RawRecord, ok bool)
}

// Config holds scrape source configuration.
type Config struct {
	BaseURL  string
	MaxPages int
	HTTP     httpx.Config
}

// Source implements service.Source for one scraped board.
type Source struct {
	tmpl   Template
	cfg    Config
	client *httpx.Client
	logger *slog.Logger
}

func New(tmpl Template, cfg Config, logger *slog.Logger) *Source {
	logger = logger.With("source", tmpl.ID)
	cfg.HTTP.Session = true
	return &Source{
		tmpl:   tmpl,
		cfg:    cfg,
		client: httpx.New(cfg.HTTP, logger),
		logger: logger,
	}
}

func NewMSS(cfg Config, logger *slog.Logger) *Source {
	return New(MSSBoard, cfg, logger)
}

func NewKised(cfg Config, logger *slog.Logger) *Source {
	return New(KisedBoard, cfg, logger)
}

func (s *Source) ID() domain.DataSource {
	return s.tmpl.ID
}

func (s *Source) Name() string {
	return s.tmpl.Name
}

func (s *Source) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %w", domain.ErrSourceUnavailable, err)
	}

	var records []domain.RawRecord

	for page := 1; page <= s.cfg.MaxPages; page++ {
		pageURL := pageURL(base, page)

		rows, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		accepted := 0
		rows.Each(func(_ int, row *goquery.Selection) {
			if rec, ok := s.tmpl.Parse(row, pageURL); ok {
				records = append(records, rec)
				accepted++
			}
		})

		s.logger.Debug("scraped page", "page", page, "rows", rows.Length(), "accepted", accepted, "total", len(records))

		// A page of only placeholder rows marks the end of the board.
		if accepted == 0 {
			break
		}
	}

	return records, nil
}

func (s *Source) Release() error {
	return s.client.Release()
}

func (s *Source) fetchPage(ctx context.Context, pageURL *url.URL) (*goquery.Selection, error) {
	body, err := s.client.Get(ctx, pageURL.String(), nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", domain.ErrParse, err)
	}

	container := doc.Find(s.tmpl.Container)
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: page structure mismatch: %q not found", domain.ErrParse, s.tmpl.Container)
	}
	return container.Find(s.tmpl.Rows), nil
}

func pageURL(base *url.URL, page int) *url.URL {
	u := *base
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return &u
}
