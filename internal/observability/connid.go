package observability

import "sync/atomic"

var connSeq int64

// NextConnID returns a monotonically increasing id for a newly accepted
// protocol transport. The service logs it once, when the session is
// accepted.
func NextConnID() int64 {
	return atomic.AddInt64(&connSeq, 1)
}
