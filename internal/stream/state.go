package stream

// State is the lifecycle position of a Stream.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AttachState tracks whether the shared segment has been mapped yet.
type AttachState int

const (
	Uninitialized AttachState = iota
	Attached
)

func (a AttachState) String() string {
	if a == Attached {
		return "attached"
	}
	return "uninitialized"
}

func (a AttachState) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Stats is a point-in-time copy of a stream's counters.
type Stats struct {
	ID string `json:"id"`
	// Received counts every datagram taken from the channel.
	Received uint64 `json:"received"`
	// Malformed counts datagrams dropped by the header codec.
	Malformed uint64 `json:"malformed"`
	// Yielded counts frames handed to the caller.
	Yielded uint64 `json:"yielded"`
	// Gaps counts frames whose frame_count did not follow the previous one.
	Gaps           uint64      `json:"gaps"`
	LastFrameCount uint32      `json:"last_frame_count"`
	SegmentBytes   int         `json:"segment_bytes"`
	Attach         AttachState `json:"attach"`
	State          State       `json:"state"`
}
