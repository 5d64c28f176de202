package radio

// EventKind tags the outcome of classifying one line.
type EventKind int

const (
	// EventDebug is free text from the firmware.
	EventDebug EventKind = iota
	// EventAck acknowledges a command.
	EventAck
	// EventSend is a transmission report.
	EventSend
	// EventRecv is a reception report with at least one packet.
	EventRecv
	// EventEmptyRecv is a reception report with no packets.
	EventEmptyRecv
	// EventIncomplete is a record lacking channel or power.
	EventIncomplete
)

func (k EventKind) String() string {
	switch k {
	case EventAck:
		return "ack"
	case EventSend:
		return "send"
	case EventRecv:
		return "recv"
	case EventEmptyRecv:
		return "empty_recv"
	case EventIncomplete:
		return "incomplete"
	default:
		return "debug"
	}
}

// Event is one classified line from one node.
type Event struct {
	Kind    EventKind
	Node    string // identifier without aggregator prefix
	NodeID  int
	Ack     string
	Channel int
	Power   int
	Record  Record
	Text    string
}

// Classify turns one raw line from identifier into an Event. It fails only
// when the identifier carries no numeric id.
func Classify(identifier, line string) (Event, error) {
	id, err := NodeID(identifier)
	if err != nil {
		return Event{}, err
	}
	ev := Event{Node: NodeName(identifier), NodeID: id, Text: line}
	rec, err := ParseRecord(line)
	if err != nil {
		ev.Kind = EventDebug
		return ev, nil
	}
	ev.Record = rec
	if rec.IsAck() {
		ev.Kind = EventAck
		ev.Ack = rec.Ack
		return ev, nil
	}
	if rec.Channel == nil || rec.Power == nil {
		ev.Kind = EventIncomplete
		return ev, nil
	}
	ev.Channel, ev.Power = *rec.Channel, *rec.Power
	switch {
	case rec.IsReception():
		ev.Kind = EventRecv
	case rec.IsTransmission():
		ev.Kind = EventSend
	default:
		ev.Kind = EventEmptyRecv
	}
	return ev, nil
}
