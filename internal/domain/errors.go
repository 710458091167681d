package domain

import (
	"errors"
	"fmt"
)

// Source failure causes. Adapters wrap one of these so a failure can be
// classified without inspecting message text.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("source rate limited")
	ErrParse             = errors.New("source parse error")
)

// Structural failures. These escalate beyond a single record or source.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConfigMissing    = errors.New("sync configuration missing")
	ErrRunInProgress    = errors.New("sync run already in progress")
	ErrNotFound         = errors.New("not found")
)

// SoftRecordError marks a single raw record as unusable. It is skipped and
// counted, never propagated past the source that produced it.
type SoftRecordError struct {
	Source DataSource
	Ref    string
	Reason string
}

func (e *SoftRecordError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: skip record: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: skip record %s: %s", e.Source, e.Ref, e.Reason)
}

// SourceError is a source-scoped hard failure.
type SourceError struct {
	Source DataSource
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsSoft reports whether err should be skipped and counted instead of
// failing the enclosing source.
func IsSoft(err error) bool {
	var soft *SoftRecordError
	return errors.As(err, &soft)
}
