package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExportUnavailable = errors.New("export unavailable")
	ErrDecode            = errors.New("decode error")
	ErrTooManyNodes      = errors.New("too many nodes")
	ErrWorkerFailure     = errors.New("link rollup worker failed")
	ErrStore             = errors.New("store error")
	ErrGroupComputing    = errors.New("group is already computing")
	ErrUnknownDimension  = errors.New("unknown grouping dimension")
	ErrNotFound          = errors.New("not found")
	ErrInvalidAnalysis   = errors.New("invalid analysis")
	ErrNotReady          = errors.New("analysis is not ready")
)

type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

type WorkerError struct {
	Chunk int
	Start int64
	End   int64
	Err   error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("link rollup chunk %d [%d, %d): %v", e.Chunk, e.Start, e.End, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

func (e *WorkerError) Is(target error) bool { return target == ErrWorkerFailure }

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

type InvalidReason int

const (
	ReasonNotExists InvalidReason = iota
	ReasonNoSegments
)

func (r InvalidReason) String() string {
	switch r {
	case ReasonNotExists:
		return "analysis does not exist"
	case ReasonNoSegments:
		return "analysis has no segments"
	default:
		return "unknown reason"
	}
}

type InvalidAnalysisError struct {
	Reason InvalidReason
}

func (e *InvalidAnalysisError) Error() string { return "invalid analysis: " + e.Reason.String() }

func (e *InvalidAnalysisError) Is(target error) bool { return target == ErrInvalidAnalysis }
