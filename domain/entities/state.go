package entities

// TaskState is the lifecycle state of a Launch Task.
//
//	Submitted → Loading → Resolving → Invoking → Running → Exited
//	     └──────────┴──────────┴──────────┴──→ Failed
//
// Running and Failed are terminal for the launch itself. Exited is only
// reported when a running module's entry point returns.
type TaskState string

const (
	TaskSubmitted TaskState = "submitted"
	TaskLoading   TaskState = "loading"
	TaskResolving TaskState = "resolving"
	TaskInvoking  TaskState = "invoking"
	TaskRunning   TaskState = "running"
	TaskFailed    TaskState = "failed"
	TaskExited    TaskState = "exited"
)

var taskTransitions = map[TaskState][]TaskState{
	TaskSubmitted: {TaskLoading, TaskFailed},
	TaskLoading:   {TaskResolving, TaskFailed},
	TaskResolving: {TaskInvoking, TaskFailed},
	TaskInvoking:  {TaskRunning, TaskFailed},
	TaskRunning:   {TaskExited},
}

// CanTransition reports whether moving from s to next is allowed.
func (s TaskState) CanTransition(next TaskState) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further launch progress is possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskRunning || s == TaskFailed || s == TaskExited
}
