// Package player implements playback of a WAV file to a call. Completion
// is detected by polling elapsed wall time against the file's known
// duration, since the SIP/media library this module is built on does not
// expose a native "playback finished" callback.
package player

import (
	"time"

	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/errs"
)

// Player tracks one in-flight playback of a WAV file to a call.
type Player struct {
	CallID   string
	FilePath string

	duration  time.Duration
	startedAt time.Time
	done      bool
	clock     func() time.Time
}

// New opens path to read its WAV duration and returns a Player ready to
// Start. It fails with errs.FileNotFound if path does not exist or is not
// a well-formed WAV file.
func New(callID, path string, clock func() time.Time) (*Player, error) {
	if clock == nil {
		clock = time.Now
	}
	dur, err := audio.WAVDuration(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileNotFound, path, err)
	}
	return &Player{
		CallID:   callID,
		FilePath: path,
		duration: dur,
		clock:    clock,
	}, nil
}

// Start records the playback start time.
func (p *Player) Start() {
	p.startedAt = p.clock()
}

// Done reports whether enough wall time has elapsed for playback to have
// finished. Once it returns true it keeps returning true.
func (p *Player) Done() bool {
	if p.done {
		return true
	}
	if p.clock().Sub(p.startedAt) >= p.duration {
		p.done = true
	}
	return p.done
}

// Duration returns the playback duration determined from the WAV file.
func (p *Player) Duration() time.Duration { return p.duration }
