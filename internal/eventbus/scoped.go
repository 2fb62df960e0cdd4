package eventbus

// Scoped wraps a Bus so every Emit is auto-stamped with a fixed agent ID
// and every Subscribe only receives events carrying that ID. This mirrors
// the per-agent event namespacing each SIP Agent needs without requiring
// every call site to thread an agent ID through by hand.
type Scoped struct {
	bus     *Bus
	agentID string
}

// NewScoped returns a Bus view scoped to agentID.
func NewScoped(bus *Bus, agentID string) *Scoped {
	return &Scoped{bus: bus, agentID: agentID}
}

// Emit stamps ev.AgentID with the scope's agent ID and forwards to the bus.
func (s *Scoped) Emit(tag Tag, fields map[string]interface{}) {
	s.bus.Emit(Event{AgentID: s.agentID, Tag: tag, Fields: fields})
}

// Subscribe registers l for tag, filtering out events not addressed to
// this scope's agent ID.
func (s *Scoped) Subscribe(tag Tag, l Listener) func() {
	return s.bus.Subscribe(tag, func(ev Event) {
		if ev.AgentID != s.agentID {
			return
		}
		l(ev)
	})
}
