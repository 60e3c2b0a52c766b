// Package validator provides input validation for document events. It
// enforces identifier, title, and body length constraints and returns
// per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/topicmine/platform/internal/ingest"
)

const (
	maxIDLength    = 255
	maxTitleLength = 1024
	maxBodyLength  = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateDocumentEvent checks that the event carries a usable identifier and
// body and returns a ValidationError if not.
func ValidateDocumentEvent(ev *ingest.DocumentEvent) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(ev.ID)
	if id == "" {
		errs["id"] = "document id is required"
	} else if len(id) > maxIDLength {
		errs["id"] = fmt.Sprintf("document id must be at most %d characters", maxIDLength)
	}
	if len(ev.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if strings.TrimSpace(ev.Body) == "" {
		errs["body"] = "body is required and must not be empty"
	} else if len(ev.Body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxBodyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
