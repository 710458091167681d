package main

import (
	"log/slog"

	"program_catalog/internal/config"
	"program_catalog/internal/domain"
	"program_catalog/internal/service"
	"program_catalog/internal/source/agency"
	"program_catalog/internal/source/httpx"
	"program_catalog/internal/source/portal"
	"program_catalog/internal/source/scrape"
)

// buildSources returns the adapters for every enabled source in canonical order.
func buildSources(cfg config.SourcesConfig, logger *slog.Logger) []service.Source {
	blocks := cfg.ByDataSource()

	var sources []service.Source
	for _, ds := range cfg.Enabled() {
		sc := blocks[ds]
		hc := httpConfig(sc)

		switch ds {
		case domain.SourceBizinfo:
			sources = append(sources, portal.NewBizinfo(portalConfig(sc, hc), logger))
		case domain.SourceKStartup:
			sources = append(sources, portal.NewKStartup(portalConfig(sc, hc), logger))
		case domain.SourceKosmes:
			sources = append(sources, agency.NewKosmes(agencyConfig(sc, hc), logger))
		case domain.SourceSemas:
			sources = append(sources, agency.NewSemas(agencyConfig(sc, hc), logger))
		case domain.SourceMSS:
			sources = append(sources, scrape.NewMSS(scrapeConfig(sc, hc), logger))
		case domain.SourceKised:
			sources = append(sources, scrape.NewKised(scrapeConfig(sc, hc), logger))
		}
	}
	return sources
}

func httpConfig(sc *config.SourceConfig) httpx.Config {
	return httpx.Config{
		Timeout:        sc.Timeout,
		MaxAttempts:    sc.Retry.MaxAttempts,
		InitialBackoff: sc.Retry.InitialBackoff,
		MaxBackoff:     sc.Retry.MaxBackoff,
		RatePerSecond:  sc.RatePerSecond,
	}
}

func portalConfig(sc *config.SourceConfig, hc httpx.Config) portal.Config {
	return portal.Config{
		BaseURL:    sc.BaseURL,
		ServiceKey: sc.APIKey,
		PageSize:   sc.PageSize,
		MaxPages:   sc.MaxPages,
		HTTP:       hc,
	}
}

func agencyConfig(sc *config.SourceConfig, hc httpx.Config) agency.Config {
	return agency.Config{
		BaseURL:  sc.BaseURL,
		APIKey:   sc.APIKey,
		PageSize: sc.PageSize,
		MaxPages: sc.MaxPages,
		HTTP:     hc,
	}
}

func scrapeConfig(sc *config.SourceConfig, hc httpx.Config) scrape.Config {
	return scrape.Config{
		BaseURL:  sc.BaseURL,
		MaxPages: sc.MaxPages,
		HTTP:     hc,
	}
}
