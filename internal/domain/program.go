package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataSource identifies the external provider a program was fetched from.
type DataSource string

const (
	SourceBizinfo  DataSource = "bizinfo"
	SourceKStartup DataSource = "kstartup"
	SourceKosmes   DataSource = "kosmes"
	SourceSemas    DataSource = "semas"
	SourceMSS      DataSource = "mss"
	SourceKised    DataSource = "kised"
)

// SourceKind groups data sources by how they are fetched.
type SourceKind string

const (
	KindPortal SourceKind = "portal"
	KindAgency SourceKind = "agency"
	KindScrape SourceKind = "scrape"
)

// AllSources lists every known data source.
var AllSources = []DataSource{
	SourceBizinfo,
	SourceKStartup,
	SourceKosmes,
	SourceSemas,
	SourceMSS,
	SourceKised,
}

func ParseDataSource(s string) (DataSource, error) {
	for _, ds := range AllSources {
		if string(ds) == s {
			return ds, nil
		}
	}
	return "", fmt.Errorf("unknown data source %q", s)
}

func (d DataSource) Kind() SourceKind {
	switch d {
	case SourceBizinfo, SourceKStartup:
		return KindPortal
	case SourceKosmes, SourceSemas:
		return KindAgency
	case SourceMSS, SourceKised:
		return KindScrape
	default:
		return ""
	}
}

// ProgramStatus is the catalog lifecycle tag of a program.
type ProgramStatus string

const (
	ProgramActive  ProgramStatus = "active"
	ProgramStale   ProgramStatus = "stale"
	ProgramRemoved ProgramStatus = "removed"
)

// Program is the canonical grant/support program record.
// (DataSource, SourceAPIID) is the natural key.
type Program struct {
	ID             uuid.UUID      `json:"id"`
	DataSource     DataSource     `json:"dataSource"`
	SourceAPIID    string         `json:"sourceApiId"`
	Title          string         `json:"title"`
	Description    *string        `json:"description,omitempty"`
	Category       *string        `json:"category,omitempty"`
	TargetAudience []string       `json:"targetAudience"`
	TargetLocation []string       `json:"targetLocation"`
	Keywords       []string       `json:"keywords"`
	BudgetRange    *string        `json:"budgetRange,omitempty"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	StartDate      *time.Time     `json:"startDate,omitempty"`
	EndDate        *time.Time     `json:"endDate,omitempty"`
	SourceURL      *string        `json:"sourceUrl,omitempty"`
	AttachmentURL  *string        `json:"attachmentUrl,omitempty"`
	RawData        map[string]any `json:"rawData,omitempty"`
	RegisteredAt   time.Time      `json:"registeredAt"`
	LastSyncedAt   time.Time      `json:"lastSyncedAt"`
	SyncStatus     ProgramStatus  `json:"syncStatus"`
}

// NaturalKey returns the business key of the program.
func (p *Program) NaturalKey() ProgramKey {
	return ProgramKey{DataSource: p.DataSource, SourceAPIID: p.SourceAPIID}
}

type ProgramKey struct {
	DataSource  DataSource
	SourceAPIID string
}

// RawRecord is what an adapter hands to the normalizer. Every field is the
// provider's text as-is; Payload keeps the original record verbatim.
type RawRecord struct {
	ExternalID     string
	Title          string
	Description    string
	Category       string
	TargetAudience []string
	TargetLocation []string
	Keywords       []string
	BudgetRange    string
	Deadline       string
	StartDate      string
	EndDate        string
	Period         string // "2024-01-01 ~ 2024-02-01" style range, used when Start/End are empty
	SourceURL      string
	AttachmentURL  string
	Payload        map[string]any
}

// UpsertResult reports which row an upsert touched.
type UpsertResult struct {
	ID       uuid.UUID
	Inserted bool
}

// ListFilter narrows catalog reads.
type ListFilter struct {
	DataSource DataSource
	Limit      int
	Offset     int
}
