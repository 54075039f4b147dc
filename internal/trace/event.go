package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat // periodic liveness signal
	KindFailure   // an event was dropped or an operation failed
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	// ScopeServer covers protocol traffic of the proxy.
	ScopeServer Scope = iota + 1
	// ScopeNotebook covers routing of cell events to notebooks.
	ScopeNotebook
	// ScopeDocument covers rebuilds of one concatenated document.
	ScopeDocument
	// ScopeEdit covers single edit translations.
	ScopeEdit
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeServer:
		return "server"
	case ScopeNotebook:
		return "notebook"
	case ScopeDocument:
		return "document"
	case ScopeEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	Name     string            // e.g. "didChange", "rebuild"
	Detail   string            // optional detail message
	Extra    map[string]string // extensible key-value pairs
}
