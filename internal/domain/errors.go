package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when vectors and chunks disagree in count
	// or a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidWindow is returned for a chunk window that cannot advance.
	ErrInvalidWindow = errors.New("invalid chunk window")
	// ErrNoText is returned when ingestion yields no chunks.
	ErrNoText = errors.New("no text found in document")
	// ErrStorage matches every StorageError.
	ErrStorage = errors.New("index storage failure")
	// ErrUpstream matches every UpstreamError.
	ErrUpstream = errors.New("upstream capability failure")
)

// StorageError reports a failed snapshot read or write.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) hold for any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// UpstreamError reports a failed embedding or generation call.
type UpstreamError struct {
	Capability string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s capability failed: %v", e.Capability, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstream) hold for any UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Upstream wraps err as an UpstreamError for the named capability. A nil err stays nil.
func Upstream(capability string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Capability: capability, Err: err}
}
