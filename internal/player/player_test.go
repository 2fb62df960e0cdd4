package player

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/eventbus"
)

func writeWAV(t *testing.T, ms int) string {
	t.Helper()
	sampleRate := 8000
	numSamples := sampleRate * ms / 1000
	pcm := make([]byte, numSamples*2)
	wav := audio.WriteWAV(pcm, sampleRate, audio.Width16)
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestNewFailsOnMissingFile(t *testing.T) {
	_, err := New("c1", filepath.Join(t.TempDir(), "missing.wav"), nil)
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDoneBecomesTrueAfterDuration(t *testing.T) {
	path := writeWAV(t, 100)
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	p, err := New("c1", path, clock)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Start()

	if p.Done() {
		t.Fatalf("should not be done immediately")
	}
	now = now.Add(150 * time.Millisecond)
	if !p.Done() {
		t.Fatalf("should be done after duration elapsed")
	}
}

func TestManagerSupersessionEmitsEndedBeforePlaying(t *testing.T) {
	bus := eventbus.New(nil)
	scoped := eventbus.NewScoped(bus, "agent-1")
	mgr := NewManager(scoped)

	var events []eventbus.Tag
	bus.Subscribe(eventbus.AudioEnded, func(e eventbus.Event) { events = append(events, e.Tag) })
	bus.Subscribe(eventbus.AudioPlaying, func(e eventbus.Event) { events = append(events, e.Tag) })

	path1 := writeWAV(t, 5000)
	path2 := writeWAV(t, 5000)

	_, err := mgr.Play("call-1", path1, func() (*Player, error) { return New("call-1", path1, nil) })
	if err != nil {
		t.Fatalf("play 1: %v", err)
	}
	if len(events) != 1 || events[0] != eventbus.AudioPlaying {
		t.Fatalf("expected single AUDIO_PLAYING, got %v", events)
	}

	_, err = mgr.Play("call-1", path2, func() (*Player, error) { return New("call-1", path2, nil) })
	if err != nil {
		t.Fatalf("play 2: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events total, got %v", events)
	}
	if events[1] != eventbus.AudioEnded || events[2] != eventbus.AudioPlaying {
		t.Fatalf("expected AUDIO_ENDED before new AUDIO_PLAYING, got %v", events)
	}
}
