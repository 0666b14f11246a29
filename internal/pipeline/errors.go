package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMediaType   = errors.New("invalid media type")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrQuotaExceeded      = errors.New("upload quota exceeded")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrInvalidMode        = errors.New("invalid processing mode")
)

type Stage string

const (
	StageDecode Stage = "decode"
	StageDetect Stage = "detect"
	StageRedact Stage = "redact"
	StageEncode Stage = "encode"
)

// StageError is a failure inside the analysis step. The orchestrator
// recovers from it by serving the original artifact.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Mode string

const (
	ModeBlur     Mode = "blur"
	ModePixelate Mode = "pixelate"
	ModeNone     Mode = "none"
)

// ParseMode maps the query value onto a Mode. Empty means blur.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeBlur:
		return ModeBlur, nil
	case ModePixelate:
		// reserved; redacts with the blur kernels for now
		return ModePixelate, nil
	case ModeNone:
		return ModeNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}
