package ratelimit

import (
	"net/http"
	"strconv"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// SetHeaders exposes the budget state so clients can throttle themselves.
// Reset is in Unix seconds, rounded up so it never precedes the real reset. Degraded decisions carry no real budget
// information and leave the headers untouched.
func SetHeaders(h http.Header, d Decision) {
	if d.Degraded {
		return
	}
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(ResetUnix(d), 10))
}

func ResetUnix(d Decision) int64 {
	return (d.ResetAt.UnixMilli() + 999) / 1000
}
