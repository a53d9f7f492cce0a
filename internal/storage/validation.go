// Package storage persists financial records to SQLite or PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/finmail/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrInvalidRecord = errors.New("invalid financial record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRecord checks the columns the schema declares NOT NULL.
func validateRecord(rec *model.FinancialRecord) error {
	if strings.TrimSpace(rec.SourceID) == "" {
		return fmt.Errorf("%w: missing email id", ErrInvalidRecord)
	}
	if rec.Info.DocumentType != "" && !rec.Info.DocumentType.Valid() {
		return fmt.Errorf("%w: document type %q", ErrInvalidRecord, rec.Info.DocumentType)
	}
	if rec.Info.Status != "" && !rec.Info.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, rec.Info.Status)
	}
	if rec.Provenance.Confidence < 0 || rec.Provenance.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRecord)
	}
	return nil
}

const defaultListLimit = 10

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
