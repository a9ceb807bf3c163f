package event

import (
	"sync"
)

// replyPool recycles the single-slot channels callers wait on.
//
// Usage:
//
//	reply := AcquireReply()
//	inbox <- &DepositEvent{BaseEvent: BaseEvent{Reply: reply}, ...}
//	res := <-reply
//	ReleaseReply(reply) // only after the result was received
var replyPool = sync.Pool{
	New: func() interface{} {
		return make(chan Result, 1)
	},
}

// AcquireReply gets an empty buffered reply channel from the pool.
func AcquireReply() chan Result {
	return replyPool.Get().(chan Result)
}

// ReleaseReply returns a drained reply channel to the pool.
// A channel whose result was never received must not be released, since the
// sequencer may still write to it.
func ReleaseReply(ch chan Result) {
	if ch == nil || len(ch) != 0 {
		return
	}
	replyPool.Put(ch)
}

// Warmup pre-allocates reply channels to reduce GC pressure at startup.
func Warmup(n int) {
	chans := make([]chan Result, 0, n)
	for i := 0; i < n; i++ {
		chans = append(chans, AcquireReply())
	}
	for _, ch := range chans {
		ReleaseReply(ch)
	}
}
