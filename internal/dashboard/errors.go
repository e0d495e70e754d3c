package dashboard

import "fmt"

// InvalidRangeError reports a malformed timeframe, year or custom range.
type InvalidRangeError struct {
	Timeframe string
	Reason    string
}

func (e *InvalidRangeError) Error() string {
	if e.Timeframe == "" {
		return "invalid range: " + e.Reason
	}
	return fmt.Sprintf("invalid range for timeframe %q: %s", e.Timeframe, e.Reason)
}

// UpstreamFetchError wraps a RecordStore failure. The underlying error is
// kept unchanged and no retry is attempted.
type UpstreamFetchError struct {
	Op  string
	Err error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("upstream fetch failed during %s: %v", e.Op, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}
