package promquery

import "errors"

// ErrFetchFailed wraps any transport or format failure querying the
// metrics backend. The autoscaler tick skips its current cycle when it
// sees this error.
var ErrFetchFailed = errors.New("metric fetch failed")
