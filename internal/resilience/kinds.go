// Package resilience implements the retry/backoff/fallback executor shared by
// every I/O-bound operation in the companion core.
package resilience

import "fmt"

// ErrorKind tags the cause of a failure for statistics and fallback selection.
type ErrorKind string

const (
	KindTranscriptionFailed ErrorKind = "transcription_failed"
	KindSynthesisFailed     ErrorKind = "synthesis_failed"
	KindModelTimeout        ErrorKind = "model_timeout"
	KindModelAPIError       ErrorKind = "model_api_error"
	KindModelRateLimit      ErrorKind = "model_rate_limit"
	KindMemoryError         ErrorKind = "memory_error"
	KindAssetMissing        ErrorKind = "asset_missing"
	KindNetworkError        ErrorKind = "network_error"
	KindEncryptionError     ErrorKind = "encryption_error"
	KindUnknown             ErrorKind = "unknown_error"
)

// AllKinds lists every ErrorKind in declaration order.
var AllKinds = []ErrorKind{
	KindTranscriptionFailed,
	KindSynthesisFailed,
	KindModelTimeout,
	KindModelAPIError,
	KindModelRateLimit,
	KindMemoryError,
	KindAssetMissing,
	KindNetworkError,
	KindEncryptionError,
	KindUnknown,
}

func (k ErrorKind) String() string {
	return string(k)
}

// ParseErrorKind returns the ErrorKind named s.
func ParseErrorKind(s string) (ErrorKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown error kind: %q", s)
}
