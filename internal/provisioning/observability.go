package provisioning

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"
)

// Observer receives structured events as the pipeline runs.
type Observer interface {
	// Printf logs a free-form message.
	Printf(format string, v ...interface{})

	// Event emits a structured event.
	Event(event Event)

	// WithFields returns a new Observer carrying additional context fields.
	WithFields(fields map[string]string) Observer
}

// Event is one structured pipeline event.
type Event struct {
	Type      EventType
	StepID    string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType classifies pipeline events.
type EventType string

const (
	// EventStepStarted indicates a step began executing.
	EventStepStarted EventType = "step.started"
	// EventStepCompleted indicates a step finished and state was persisted.
	EventStepCompleted EventType = "step.completed"
	// EventStepFailed indicates a step failed; state was not advanced.
	EventStepFailed EventType = "step.failed"
	// EventStepDeclined indicates the operator declined the confirmation
	// gate; the step made no mutation and will be offered again.
	EventStepDeclined EventType = "step.declined"
	// EventStepSkipped indicates the step was not applicable on this host.
	EventStepSkipped EventType = "step.skipped"

	// EventActionExecuted indicates the gateway performed a mutation.
	EventActionExecuted EventType = "action.executed"
	// EventActionSimulated indicates the gateway recorded a mutation
	// without performing it.
	EventActionSimulated EventType = "action.simulated"

	// EventRebootRequested indicates a completed step requires a host
	// restart and state has already been persisted.
	EventRebootRequested EventType = "reboot.requested"

	// EventValidationWarning indicates a non-fatal discrepancy, such as a
	// NUMA node with fewer CPUs than the requested share.
	EventValidationWarning EventType = "validation.warning"
)

// ConsoleObserver writes events through the standard log package and,
// when Log is set, appends a plain-text line per event to it. The appended
// file backs the operator's "view log" command.
type ConsoleObserver struct {
	Log io.Writer

	contextFields map[string]string
}

// NewConsoleObserver returns an Observer logging to stderr only.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{contextFields: make(map[string]string)}
}

// NewConsoleObserverWithLog returns an Observer that also appends to w.
func NewConsoleObserverWithLog(w io.Writer) *ConsoleObserver {
	return &ConsoleObserver{Log: w, contextFields: make(map[string]string)}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
	if o.Log != nil {
		fmt.Fprintf(o.Log, time.Now().Format(time.RFC3339)+" "+format+"\n", v...)
	}
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range o.contextFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}

	line := formatEvent(event)
	log.Print(line)
	if o.Log != nil {
		fmt.Fprintf(o.Log, "%s %s\n", event.Timestamp.Format(time.RFC3339), line)
	}
}

// WithFields implements Observer.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	merged := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ConsoleObserver{Log: o.Log, contextFields: merged}
}

func formatEvent(e Event) string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.StepID != "" {
		fmt.Fprintf(&b, " step=%s", e.StepID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Fields[k])
	}
	return b.String()
}
