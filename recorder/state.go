package recorder

type State int

const (
	StateUninitialized State = iota
	StatePermissionPending
	StatePermissionDenied
	StateIdle
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePermissionPending:
		return "permission-pending"
	case StatePermissionDenied:
		return "permission-denied"
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

type Icon int

const (
	IconDisabled Icon = iota
	IconPlay
	IconStop
	IconLoading
)

func (i Icon) String() string {
	switch i {
	case IconDisabled:
		return "disabled"
	case IconPlay:
		return "play"
	case IconStop:
		return "stop"
	case IconLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// View is the visible control. Exactly one icon is shown at a time.
type View struct {
	State     State
	Icon      Icon
	Disabled  bool
	Uploading bool
}

// ViewFor derives the visible control from the lifecycle state and whether
// an upload is in flight.
func ViewFor(s State, uploading bool) View {
	v := View{State: s, Uploading: uploading}
	switch s {
	case StateIdle:
		v.Icon = IconPlay
		if uploading {
			v.Icon = IconLoading
		}
	case StateRecording:
		v.Icon = IconStop
	default:
		v.Icon = IconDisabled
		v.Disabled = true
	}
	return v
}

// Events fed to the machine. Device and network results carry the id of the
// session they belong to so late deliveries can be dropped.
type Event interface{ name() string }

type (
	eventAttach     struct{}
	eventPermission struct {
		format Format
		err    error
	}
	eventToggle struct{}
	eventChunk  struct {
		session uint64
		data    []byte
	}
	eventStopped struct {
		session uint64
		err     error
	}
	eventUploaded struct {
		receipt Receipt
		err     error
	}
)

func (eventAttach) name() string     { return "attach" }
func (eventPermission) name() string { return "permission" }
func (eventToggle) name() string     { return "toggle" }
func (eventChunk) name() string      { return "chunk" }
func (eventStopped) name() string    { return "stopped" }
func (eventUploaded) name() string   { return "uploaded" }

// Effects the controller carries out after a transition.
type effect interface{}

type (
	effectOpen   struct{}
	effectStart  struct{ session uint64 }
	effectStop   struct{ chunks, bytes int }
	effectUpload struct{ artifact Artifact }
	effectNotify struct{ err error }
	effectDone   struct{ receipt Receipt }
	effectRender struct{ view View }
)

// machine holds the lifecycle state. apply is its only transition function;
// it never performs I/O.
type machine struct {
	state   State
	format  Format
	session *Session
	nextID  uint64
	uploads int
}

func (m *machine) view() View {
	return ViewFor(m.state, m.uploads > 0)
}

func (m *machine) apply(ev Event) []effect {
	before := m.view()
	var out []effect

	switch ev := ev.(type) {
	case eventAttach:
		if m.state == StateUninitialized {
			m.state = StatePermissionPending
			out = append(out, effectOpen{})
		}

	case eventPermission:
		if m.state != StatePermissionPending {
			break
		}
		if ev.err != nil {
			m.state = StatePermissionDenied
			out = append(out, effectNotify{err: capabilityError(ev.err)})
			break
		}
		m.format = ev.format
		m.state = StateIdle

	case eventToggle:
		switch m.state {
		case StateIdle:
			m.nextID++
			m.session = newSession(m.nextID)
			m.state = StateRecording
			out = append(out, effectStart{session: m.session.ID})
		case StateRecording:
			if !m.session.stopping {
				m.session.stopping = true
				chunks, bytes := m.session.buffered()
				out = append(out, effectStop{chunks: chunks, bytes: bytes})
			}
		}

	case eventChunk:
		if m.state == StateRecording && m.session.ID == ev.session {
			m.session.append(ev.data)
		}

	case eventStopped:
		if m.state != StateRecording || m.session.ID != ev.session {
			break
		}
		sess := m.session
		m.session = nil
		m.state = StateIdle
		if ev.err != nil {
			out = append(out, effectNotify{err: ev.err})
			break
		}
		m.uploads++
		out = append(out, effectUpload{artifact: sess.Finish(m.format)})

	case eventUploaded:
		if m.uploads > 0 {
			m.uploads--
		}
		if ev.err != nil {
			out = append(out, effectNotify{err: uploadError(ev.err)})
		} else {
			out = append(out, effectDone{receipt: ev.receipt})
		}
	}

	if after := m.view(); after != before {
		out = append(out, effectRender{view: after})
	}
	return out
}
