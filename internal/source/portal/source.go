// Package portal implements adapters for the public-data REST portals. Both
// datasets share the same envelope, authentication (serviceKey) and
// pageNo/numOfRows pagination; they differ only in their record layout.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"program_catalog/internal/domain"
	"program_catalog/internal/source/httpx"
)

// Dataset describes one portal dataset.
type Dataset struct {
	ID   domain.DataSource
	Name string
	Map  func(item map[string]any) domain.RawRecord
}

// Config holds portal source configuration.
type Config struct {
	BaseURL    string
	ServiceKey string
	PageSize   int
	MaxPages   int
	HTTP       httpx.Config
}

// Source implements service.Source for a public-data portal dataset.
type Source struct {
	dataset Dataset
	cfg     Config
	client  *httpx.Client
	logger  *slog.Logger
}

func New(dataset Dataset, cfg Config, logger *slog.Logger) *Source {
	logger = logger.With("source", dataset.ID)
	return &Source{
		dataset: dataset,
		cfg:     cfg,
		client:  httpx.New(cfg.HTTP, logger),
		logger:  logger,
	}
}

func NewBizinfo(cfg Config, logger *slog.Logger) *Source {
	return New(Bizinfo, cfg, logger)
}

func NewKStartup(cfg Config, logger *slog.Logger) *Source {
	return New(KStartup, cfg, logger)
}

func (s *Source) ID() domain.DataSource {
	return s.dataset.ID
}

func (s *Source) Name() string {
	return s.dataset.Name
}

// Fetch pages through the dataset until it is exhausted or MaxPages is hit.
func (s *Source) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	if s.cfg.ServiceKey == "" {
		return nil, fmt.Errorf("%w: service key not configured", domain.ErrSourceUnavailable)
	}

	var records []domain.RawRecord

	for page := 1; page <= s.cfg.MaxPages; page++ {
		body, err := s.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		for _, item := range body.Items {
			records = append(records, s.dataset.Map(item))
		}

		s.logger.Debug("fetched page",
			"page", page,
			"items", len(body.Items),
			"total", len(records),
		)

		if len(body.Items) == 0 {
			break
		}
		// Some datasets omit totalCount; then only a short page ends the listing.
		if body.TotalCount > 0 && len(records) >= body.TotalCount {
			break
		}
		if body.TotalCount == 0 && len(body.Items) < s.cfg.PageSize {
			break
		}
	}

	return records, nil
}

func (s *Source) Release() error {
	return s.client.Release()
}

func (s *Source) fetchPage(ctx context.Context, page int) (*Body, error) {
	q := url.Values{}
	q.Set("serviceKey", s.cfg.ServiceKey)
	q.Set("pageNo", strconv.Itoa(page))
	q.Set("numOfRows", strconv.Itoa(s.cfg.PageSize))
	q.Set("returnType", "json")

	var env Envelope
	if err := s.client.GetJSON(ctx, s.cfg.BaseURL+"?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}

	h := env.Response.Header
	switch h.ResultCode {
	case resultOK:
		return &env.Response.Body, nil
	case resultLimitExceeds:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, h.ResultMsg)
	case "":
		return nil, fmt.Errorf("%w: missing result header", domain.ErrParse)
	default:
		return nil, fmt.Errorf("%w: result %s: %s", domain.ErrSourceUnavailable, h.ResultCode, h.ResultMsg)
	}
}
