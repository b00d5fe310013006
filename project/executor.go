package project

import (
	"context"
	"fmt"
	"time"

	"cncplan/common/logger"
	"cncplan/common/utils/sys"

	"code.hybscloud.com/atomix"
)

// Executor drives ExecMove from its own goroutine, one segment per tick,
// standing in for the stepper loader interrupt.
type Executor struct {
	planner  *Planner
	period   time.Duration
	wake     chan struct{}
	requests atomix.Uint32
	idle     bool
}

func NewExecutor(planner *Planner, period time.Duration) *Executor {
	e := &Executor{
		planner: planner,
		period:  period,
		wake:    make(chan struct{}, 1),
		idle:    true,
	}
	planner.SetExecRequester(e)
	return e
}

// RequestExecMove restarts execution after the executor went idle. It is
// called with the planner token held and never blocks.
func (e *Executor) RequestExecMove() {
	e.requests.Add(1)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) Requests() uint32 {
	return e.requests.Load()
}

// Run steps the planner until ctx is done or a step fails fatally.
func (e *Executor) Run(ctx context.Context) error {
	logger.Debugf("executor goroutine %d running", sys.GetGID())
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.wake:
			if !e.idle {
				continue
			}
		}
		res, err := e.Step()
		if res == ExecFatal {
			logger.Errorf("executor stopped: %v", err)
			return err
		}
		e.idle = res == ExecNoop
	}
}

// Step runs a single ExecMove. A panic in the motion core comes back as
// ExecFatal.
func (e *Executor) Step() (res ExecResult, err error) {
	defer sys.CatchPanic(func(v interface{}) {
		res = ExecFatal
		err = fmt.Errorf("%w: panic in exec: %v", ErrInternal, v)
	})
	return e.planner.ExecMove()
}
