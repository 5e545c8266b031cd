package crawler

// State is the lifecycle state of a Scheduler.
type State int

const (
	// StateIdle is the state before Crawl is called.
	StateIdle State = iota

	// StateRunning means the frontier holds more than the path being visited.
	StateRunning

	// StateDraining means the last queued path has been popped. Visiting
	// it may enqueue new paths and return the scheduler to StateRunning.
	StateDraining

	// StateDone means the crawl has ended.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
