package queue

import (
	"testing"

	"github.com/chris17453/echomatrix/internal/errs"
)

func TestSubmitAndDrainPreservesOrder(t *testing.T) {
	q := New()
	for i := 0; i < 3; i++ {
		if err := q.Submit(Command{Kind: PlayWav, CallID: "c1", FilePath: "f.wav"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	got := q.Drain(8)
	if len(got) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(got))
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue drained, len=%d", q.Len())
	}
}

func TestDrainRespectsMax(t *testing.T) {
	q := New()
	for i := 0; i < 10; i++ {
		_ = q.Submit(Command{Kind: PlayWav, CallID: "c1"})
	}

	first := q.Drain(8)
	if len(first) != 8 {
		t.Fatalf("expected 8, got %d", len(first))
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", q.Len())
	}
}

func TestSubmitToClosedQueueFails(t *testing.T) {
	q := New()
	q.Close()

	err := q.Submit(Command{Kind: PlayWav, CallID: "c1"})
	if !errs.Is(err, errs.QueueClosed) {
		t.Fatalf("expected QueueClosed, got %v", err)
	}
}

func TestDrainOnEmptyQueueReturnsNil(t *testing.T) {
	q := New()
	if got := q.Drain(8); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
