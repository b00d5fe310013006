package project

// Collaborators of the motion core. The planner never reaches past these.

// StepperPrep receives prepared segments. PrepLine may refuse a segment, in
// which case the runtime position is not advanced.
type StepperPrep interface {
	PrepLine(steps []float64, microseconds float64) error
	PrepNull()
	PrepDwell(microseconds float64)
	IsBusy() bool
}

type ExecRequester interface {
	RequestExecMove()
}

type CycleNotifier interface {
	CycleStarted(id string)
	CycleEnded(id string)
}

type ReportRequester interface {
	RequestStatusReport()
	RequestQueueReport()
}

type ArcAborter interface {
	AbortArc()
}

// CommandFunc is a synchronous queue command, run in order with motion.
type CommandFunc func(i int, f float64)

type nopCollaborator struct{}

func (nopCollaborator) RequestExecMove()     {}
func (nopCollaborator) CycleStarted(string)  {}
func (nopCollaborator) CycleEnded(string)    {}
func (nopCollaborator) RequestStatusReport() {}
func (nopCollaborator) RequestQueueReport()  {}
func (nopCollaborator) AbortArc()            {}
