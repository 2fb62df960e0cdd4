package player

import (
	"sync"

	"github.com/chris17453/echomatrix/internal/eventbus"
)

// Manager owns one Player per call and enforces the supersession rule: a
// new Play() on a call that already has a Player stops the old one and
// emits AUDIO_ENDED for it before the new Player starts and emits
// AUDIO_PLAYING.
type Manager struct {
	mu      sync.Mutex
	players map[string]*Player
	events  *eventbus.Scoped
}

// NewManager creates an empty Manager.
func NewManager(events *eventbus.Scoped) *Manager {
	return &Manager{players: make(map[string]*Player), events: events}
}

// Play supersedes any existing Player for callID with a new one for path.
func (m *Manager) Play(callID, path string, newClock func() (ptr *Player, err error)) (*Player, error) {
	m.mu.Lock()
	existing := m.players[callID]
	m.mu.Unlock()

	if existing != nil {
		m.stopLocked(callID, existing)
	}

	p, err := newClock()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.players[callID] = p
	m.mu.Unlock()

	p.Start()
	m.emit(eventbus.AudioPlaying, callID, p.FilePath, p.Duration().Seconds())
	return p, nil
}

// PollCompletions checks every tracked Player and removes + emits
// AUDIO_ENDED for any that have finished. Call this once per tick.
func (m *Manager) PollCompletions() {
	type finished struct {
		callID      string
		path        string
		durationSec float64
	}

	m.mu.Lock()
	done := make([]finished, 0)
	for callID, p := range m.players {
		if p.Done() {
			done = append(done, finished{callID: callID, path: p.FilePath, durationSec: p.Duration().Seconds()})
		}
	}
	for _, f := range done {
		delete(m.players, f.callID)
	}
	m.mu.Unlock()

	for _, f := range done {
		m.emit(eventbus.AudioEnded, f.callID, f.path, f.durationSec)
	}
}

// Stop supersedes/removes the Player for callID, if any, emitting
// AUDIO_ENDED.
func (m *Manager) Stop(callID string) {
	m.mu.Lock()
	existing := m.players[callID]
	m.mu.Unlock()
	if existing != nil {
		m.stopLocked(callID, existing)
	}
}

func (m *Manager) stopLocked(callID string, p *Player) {
	m.mu.Lock()
	delete(m.players, callID)
	m.mu.Unlock()
	m.emit(eventbus.AudioEnded, callID, p.FilePath, p.Duration().Seconds())
}

func (m *Manager) emit(tag eventbus.Tag, callID, path string, durationSec float64) {
	if m.events == nil {
		return
	}
	fields := map[string]interface{}{"call_id": callID, "duration": durationSec}
	if path != "" {
		fields["file_path"] = path
	}
	m.events.Emit(tag, fields)
}
