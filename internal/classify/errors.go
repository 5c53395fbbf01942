package classify

import (
	"errors"
	"fmt"

	"github.com/hyperjump/taxonomia/internal/llm"
)

var (
	// ErrEmptyInput is returned when the instrument text is empty after trimming.
	ErrEmptyInput = errors.New("instrument text is empty")
	// ErrMalformedResponse is returned when the classification response is not a JSON array.
	ErrMalformedResponse = errors.New("malformed classification response")
)

// Pipeline stages reported by FailedError.
const (
	StageClassify  = "classify"
	StageSummarize = "summarize"
)

// FailedError reports a failed language model call.
type FailedError struct {
	Stage string
	Err   error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("classification failed at %s: %v", e.Stage, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// Safety reports whether the provider rejected the content on safety grounds.
func (e *FailedError) Safety() bool {
	return errors.Is(e.Err, llm.ErrSafetyBlocked)
}

// IsSafetyRejection reports whether err is a content-safety rejection from any stage.
func IsSafetyRejection(err error) bool {
	var fe *FailedError
	return errors.As(err, &fe) && fe.Safety()
}
