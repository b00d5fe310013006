package lock

import (
	"sync/atomic"

	"code.hybscloud.com/iox"
)

// SpinLock is a one-word ownership token. The motion core hands it between
// the call context and the segment executor; the executor side only ever
// uses TryLock so a tick is skipped rather than stalled.
type SpinLock uint32

// Lock waits for the token with adaptive backoff.
func (sl *SpinLock) Lock() {
	var bo iox.Backoff
	for !sl.TryLock() {
		bo.Wait()
	}
}

func (sl *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1)
}

func (sl *SpinLock) UnLock() {
	atomic.CompareAndSwapUint32((*uint32)(sl), 1, 0)
}

func (sl *SpinLock) IsLocked() bool {
	return atomic.LoadUint32((*uint32)(sl)) == 1
}
