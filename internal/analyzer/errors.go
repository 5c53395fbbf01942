package analyzer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/taxonomia/internal/classify"
	"github.com/hyperjump/taxonomia/internal/extract"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/storage"
)

// PersistenceError reports a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Kind is a stable, machine-readable error category.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindEmptyInput            Kind = "empty_input"
	KindUnsupportedFormat     Kind = "unsupported_format"
	KindMalformedResponse     Kind = "malformed_response"
	KindContentSafetyRejected Kind = "content_safety_rejected"
	KindClassificationFailed  Kind = "classification_failed"
	KindNotFound              Kind = "not_found"
	KindPersistenceFailed     Kind = "persistence_failed"
	KindInternal              Kind = "internal"
)

// KindOf categorizes err.
func KindOf(err error) Kind {
	var fe *classify.FailedError
	var pe *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, classify.ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, classify.ErrMalformedResponse):
		return KindMalformedResponse
	case errors.As(err, &fe) && fe.Safety():
		return KindContentSafetyRejected
	case errors.As(err, &fe):
		return KindClassificationFailed
	case errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.As(err, &pe):
		return KindPersistenceFailed
	default:
		return KindInternal
	}
}

// UserMessage returns a message suitable for showing to the person who submitted the instrument.
func UserMessage(err error) string {
	switch KindOf(err) {
	case "":
		return ""
	case KindInvalidInput:
		return "Please complete every field: " + err.Error()
	case KindEmptyInput:
		return "The instrument text is empty. Paste the text or upload a file with content."
	case KindUnsupportedFormat:
		return "This file type cannot be read. Upload a PDF, DOCX, XLSX, ODT, RTF or TXT file, or paste the text manually."
	case KindMalformedResponse:
		return withDetails("The model's answer could not be interpreted. Please try again.", malformedDetail(err))
	case KindContentSafetyRejected:
		return "The analysis was blocked by the provider's content safety filters. Review the instrument text and remove any sensitive content before trying again."
	case KindClassificationFailed:
		var fe *classify.FailedError
		errors.As(err, &fe)
		return withDetails("The analysis could not be completed. Please try again later.", causeOf(fe))
	case KindNotFound:
		return "The requested analysis does not exist."
	case KindPersistenceFailed:
		return "The analysis history could not be read or saved. Please try again."
	default:
		return "An unexpected error occurred."
	}
}

func withDetails(msg, detail string) string {
	if detail == "" {
		return msg
	}
	return msg + " Details: " + detail
}

func causeOf(fe *classify.FailedError) string {
	if fe == nil || fe.Err == nil {
		return ""
	}
	return fe.Err.Error()
}

// malformedDetail returns the parse error and payload excerpt wrapped around ErrMalformedResponse.
func malformedDetail(err error) string {
	msg := err.Error()
	prefix := classify.ErrMalformedResponse.Error()
	i := strings.Index(msg, prefix)
	if i < 0 {
		return ""
	}
	return strings.TrimPrefix(msg[i+len(prefix):], ": ")
}
