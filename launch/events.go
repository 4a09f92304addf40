package launch

// eventType describes an event type.
type eventType = string

const (
	eventWarning        eventType = "warning"
	eventBooting        eventType = "booting"
	eventStateChange    eventType = "state change"
	eventSignal         eventType = "signal"
	eventShutdown       eventType = "shutdown"
	eventRestarting     eventType = "restarting"
	eventWatchTriggered eventType = "watch triggered"
	eventPruneSkipped   eventType = "prune skipped"
	eventWorkerSpawned  eventType = "worker spawned"
	eventWorkerExited   eventType = "worker exited"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventBooting:
		return &EventBooting{}
	case eventStateChange:
		return &EventStateChange{}
	case eventSignal:
		return &EventSignal{}
	case eventShutdown:
		return &EventShutdown{}
	case eventRestarting:
		return &EventRestarting{}
	case eventWatchTriggered:
		return &EventWatchTriggered{}
	case eventPruneSkipped:
		return &EventPruneSkipped{}
	case eventWorkerSpawned:
		return &EventWorkerSpawned{}
	case eventWorkerExited:
		return &EventWorkerExited{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs. The launcher keeps
// going after writing one; the named feature is skipped or degraded.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventBooting is emitted once on startup, after configuration is resolved
// and before the runner takes over.
type EventBooting struct {
	Mode       string `json:"mode"` // "single" or "cluster"
	PID        int    `json:"pid"`
	Generation int    `json:"generation"` // 0 for a fresh start
	Tag        string `json:"tag,omitempty"`
}

func (ev *EventBooting) Type() string { return eventBooting }
func (ev *EventBooting) event()       {}

// EventStateChange is emitted whenever the lifecycle status moves away from
// run. Repeated requests for the same status are not re-emitted.
type EventStateChange struct {
	Status string `json:"status"`
}

func (ev *EventStateChange) Type() string { return eventStateChange }
func (ev *EventStateChange) event()       {}

// EventSignal is emitted when a control signal is received, before the mapped
// action runs.
type EventSignal struct {
	Signal string `json:"signal"`
	Action string `json:"action"`
}

func (ev *EventSignal) Type() string { return eventSignal }
func (ev *EventSignal) event()       {}

// EventShutdown is the shutdown banner, emitted after the runner has stopped.
// Graceful is false on halt, where in-flight work is abandoned.
type EventShutdown struct {
	Graceful bool `json:"graceful"`
}

func (ev *EventShutdown) Type() string { return eventShutdown }
func (ev *EventShutdown) event()       {}

// EventRestarting is emitted right before the process image is replaced. It
// is the last event the old image writes.
type EventRestarting struct {
	Generation int      `json:"generation"`
	Dir        string   `json:"dir"`
	Argv       []string `json:"argv"`
}

func (ev *EventRestarting) Type() string { return eventRestarting }
func (ev *EventRestarting) event()       {}

// EventWatchTriggered is emitted when the restart trigger file is touched.
type EventWatchTriggered struct {
	Path string `json:"path"`
}

func (ev *EventWatchTriggered) Type() string { return eventWatchTriggered }
func (ev *EventWatchTriggered) event()       {}

// EventPruneSkipped is emitted when the dependency-prune re-exec cannot run
// and startup continues unpruned.
type EventPruneSkipped struct {
	Reason string `json:"reason"`
}

func (ev *EventPruneSkipped) Type() string { return eventPruneSkipped }
func (ev *EventPruneSkipped) event()       {}

// EventWorkerSpawned is emitted by the cluster runner when a worker process
// has been started for any reason.
type EventWorkerSpawned struct {
	Index int `json:"index"`
	PID   int `json:"pid"`
	Phase int `json:"phase"`
}

func (ev *EventWorkerSpawned) Type() string { return eventWorkerSpawned }
func (ev *EventWorkerSpawned) event()       {}

// EventWorkerExited is emitted by the cluster runner when a worker process
// has exited for any reason.
type EventWorkerExited struct {
	Index    int    `json:"index"`
	PID      int    `json:"pid"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"` // -1 if interrupted or terminated
}

func (ev *EventWorkerExited) Type() string { return eventWorkerExited }
func (ev *EventWorkerExited) event()       {}
