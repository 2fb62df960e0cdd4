package callmodel

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// transcriptDoc is the YAML document shape written at CALL_DISCONNECTED.
type transcriptDoc struct {
	ID                 string            `yaml:"id"`
	StartTime          time.Time         `yaml:"start_time"`
	EndTime            time.Time         `yaml:"end_time"`
	DurationSec        float64           `yaml:"duration_sec"`
	Chat               []ChatEntry       `yaml:"chat"`
	Actions            []ActionEntry     `yaml:"actions"`
	UnprocessedCount   int               `yaml:"unprocessed_count"`
	OutgoingAudioCount int               `yaml:"outgoing_audio_count"`
	Metadata           map[string]string `yaml:"metadata"`
}

// WriteTranscript renders c as a YAML document at dir/<id>.yaml.
func (c *Call) WriteTranscript(dir string) (string, error) {
	doc := transcriptDoc{
		ID:                 c.ID,
		StartTime:          c.StartTime,
		EndTime:            c.EndTime,
		DurationSec:        c.EndTime.Sub(c.StartTime).Seconds(),
		Chat:               c.Chat,
		Actions:            c.Actions,
		UnprocessedCount:   c.UnprocessedCount,
		OutgoingAudioCount: c.OutgoingAudioCount,
		Metadata:           c.Metadata,
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("callmodel: marshal transcript: %w", err)
	}

	path := filepath.Join(dir, c.ID+".yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("callmodel: write transcript: %w", err)
	}
	return path, nil
}
