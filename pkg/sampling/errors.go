package sampling

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSamplingWindow is returned when no instant in the validation window is preceded
	// by a long enough stretch of valid conditions.
	ErrNoSamplingWindow = errors.New("could not find a valid sampling window")

	// ErrNoData is returned by accessors when a time series holds no points in the requested range.
	ErrNoData = errors.New("no data points found")
)

// ConfigurationError reports a missing or invalid routine configuration field. It is
// detected before any data is requested.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid routine configuration: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid routine configuration: %s %s", e.Field, e.Reason)
}

func missing(field string) *ConfigurationError {
	return &ConfigurationError{Field: field}
}

// DataError reports a time series that could not provide the data a check or input needs.
type DataError struct {
	SeriesID string
	// Input names the routine input when the failing series backs an input.
	Input string
	Err   error
}

func (e *DataError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("input %q (time series %q): %v", e.Input, e.SeriesID, e.Err)
	}
	return fmt.Sprintf("time series %q: %v", e.SeriesID, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// NoSamplingWindowError carries the details of a failed sampling window search.
type NoSamplingWindowError struct {
	ValidationStart int64
	ValidationEnd   int64
	SamplingWindow  time.Duration
	// Checks describes the enabled checks, e.g. `logical check "pump-status" ge 1`.
	Checks string
}

func (e *NoSamplingWindowError) Error() string {
	start := time.UnixMilli(e.ValidationStart).UTC().Format(time.RFC3339)
	end := time.UnixMilli(e.ValidationEnd).UTC().Format(time.RFC3339)
	msg := fmt.Sprintf("%s: no %s window between %s and %s", ErrNoSamplingWindow, e.SamplingWindow, start, end)
	if e.Checks != "" {
		msg += " satisfying " + e.Checks
	}
	return msg
}

func (e *NoSamplingWindowError) Unwrap() error { return ErrNoSamplingWindow }
