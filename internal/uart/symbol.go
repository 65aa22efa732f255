package uart

import "fmt"

// Kind discriminates the variants of a Symbol.
type Kind int

const (
	KindUnknown Kind = iota
	KindData
	KindEvent
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindData:    "data",
	KindEvent:   "event",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown symbol kind %q", b)
}

// Scope says which line(s) a symbol belongs to. The numeric order is the
// tie-break order in a DecodeLog.
type Scope int

const (
	ScopeBoth Scope = iota
	ScopeRx
	ScopeTx
)

var scopeNames = map[Scope]string{
	ScopeBoth: "both",
	ScopeRx:   "rx",
	ScopeTx:   "tx",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(b []byte) error {
	for scope, name := range scopeNames {
		if name == string(b) {
			*s = scope
			return nil
		}
	}
	return fmt.Errorf("unknown symbol scope %q", b)
}

// ErrorKind classifies a per-symbol decode anomaly. Empty means none.
type ErrorKind string

const (
	ErrorNone    ErrorKind = ""
	ParityError  ErrorKind = "PARITY_ERROR"
	FramingError ErrorKind = "FRAMING_ERROR"
)

// Event names.
const (
	EventStartError      = "START_ERR"
	EventBreak           = "BREAK"
	EventConcurrentStart = "CONCURRENT_START"
	EventConcurrentEdge  = "CONCURRENT_EDGE"
)

// Symbol is one decoded unit: a data frame or a line event. Start and End are
// the inclusive sample span.
type Symbol struct {
	Kind  Kind      `json:"kind"`
	Scope Scope     `json:"scope"`
	Value int       `json:"value"`
	Event string    `json:"event,omitempty"`
	Start int64     `json:"start"`
	End   int64     `json:"end"`
	Error ErrorKind `json:"error,omitempty"`
}

// IsData reports whether s is a decoded data frame.
func (s Symbol) IsData() bool {
	return s.Kind == KindData
}

// IsEvent reports whether s is a line event.
func (s Symbol) IsEvent() bool {
	return s.Kind == KindEvent
}

// HasError reports whether s carries a decode anomaly.
func (s Symbol) HasError() bool {
	return s.Error != ErrorNone
}

func dataSymbol(scope Scope, value int, start, end int64, errKind ErrorKind) Symbol {
	return Symbol{Kind: KindData, Scope: scope, Value: value, Start: start, End: end, Error: errKind}
}

func eventSymbol(scope Scope, name string, start, end int64, errKind ErrorKind) Symbol {
	return Symbol{Kind: KindEvent, Scope: scope, Event: name, Start: start, End: end, Error: errKind}
}
