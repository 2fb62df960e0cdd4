package callmodel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestWriteTranscriptRoundTrips(t *testing.T) {
	c := New("call-1", "sip:alice@example.com")
	c.StartTime = time.Now()
	c.AppendChat(RoleCaller, "hello", time.Now())
	c.AppendChat(RoleSystem, "hi there", time.Now())
	c.AppendAction("play_wav", "/tmp/welcome.wav", time.Now())
	c.EndTime = c.StartTime.Add(30 * time.Second)

	dir := t.TempDir()
	path, err := c.WriteTranscript(dir)
	if err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	var doc transcriptDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if doc.ID != "call-1" {
		t.Fatalf("unexpected id: %s", doc.ID)
	}
	if len(doc.Chat) != 2 {
		t.Fatalf("expected 2 chat entries, got %d", len(doc.Chat))
	}
	if doc.OutgoingAudioCount != 1 {
		t.Fatalf("expected outgoing audio count 1, got %d", doc.OutgoingAudioCount)
	}
	if doc.UnprocessedCount != 1 {
		t.Fatalf("expected unprocessed count 1 (one user turn), got %d", doc.UnprocessedCount)
	}
	if doc.DurationSec != 30 {
		t.Fatalf("expected duration 30s, got %v", doc.DurationSec)
	}
}

func TestWriteTranscriptPathIsIDYaml(t *testing.T) {
	c := New("abc-123", "sip:bob@example.com")
	dir := t.TempDir()
	path, err := c.WriteTranscript(dir)
	if err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	if filepath.Base(path) != "abc-123.yaml" {
		t.Fatalf("unexpected filename: %s", path)
	}
}
