package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.pcm")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func int16LE(vals ...int16) []byte {
	out := make([]byte, 0, len(vals)*2)
	for _, v := range vals {
		out = append(out, byte(uint16(v)), byte(uint16(v)>>8))
	}
	return out
}

func TestRMSOfTailMissingFileReturnsZero(t *testing.T) {
	if got := RMSOfTail(filepath.Join(t.TempDir(), "missing.pcm"), 8000, Width16, 1.0); got != 0 {
		t.Fatalf("expected 0 for missing file, got %v", got)
	}
}

func TestRMSOfTailUnsupportedWidthReturnsZero(t *testing.T) {
	path := writeTemp(t, int16LE(400, 400))
	if got := RMSOfTail(path, 8000, 3, 1.0); got != 0 {
		t.Fatalf("expected 0 for unsupported width, got %v", got)
	}
}

func TestRMSOfTailConstantSignal(t *testing.T) {
	path := writeTemp(t, int16LE(400, 400, 400, 400))
	got := RMSOfTail(path, 8000, Width16, 1.0)
	if got != 400 {
		t.Fatalf("expected RMS 400 for constant signal, got %v", got)
	}
}

func TestRMSOfTailClampsToFileSize(t *testing.T) {
	// Window requests far more than the file holds; should use whole file.
	path := writeTemp(t, int16LE(100, 100))
	got := RMSOfTail(path, 8000, Width16, 10.0)
	if got != 100 {
		t.Fatalf("expected RMS 100 using whole file, got %v", got)
	}
}

func TestExtractRangeHappyPath(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 256)
	}
	path := writeTemp(t, data)

	got, err := ExtractRange(path, 10, 20)
	if err != nil {
		t.Fatalf("extract range: %v", err)
	}
	if len(got) != 10 || got[0] != data[10] {
		t.Fatalf("unexpected extracted data: %v", got)
	}
}

func TestExtractRangeClampsEndToFileSize(t *testing.T) {
	data := make([]byte, 1000)
	path := writeTemp(t, data)

	got, err := ExtractRange(path, 990, 2000)
	if err != nil {
		t.Fatalf("extract range: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected clamp to 10 bytes, got %d", len(got))
	}
}

func TestExtractRangeStartBeyondFileFails(t *testing.T) {
	data := make([]byte, 1000)
	path := writeTemp(t, data)

	if _, err := ExtractRange(path, 1000, 1010); err == nil {
		t.Fatalf("expected error for start >= file size")
	}
}

func TestExtractRangeStartNotLessThanEndFails(t *testing.T) {
	data := make([]byte, 1000)
	path := writeTemp(t, data)

	if _, err := ExtractRange(path, 50, 50); err == nil {
		t.Fatalf("expected error for start == end")
	}
}

func TestMsToByteOffset(t *testing.T) {
	// 2000ms * 8000Hz * 2 bytes / 1000 = 32000
	if got := MsToByteOffset(2000, 8000, Width16); got != 32000 {
		t.Fatalf("expected 32000, got %d", got)
	}
	// 3500ms -> 56000
	if got := MsToByteOffset(3500, 8000, Width16); got != 56000 {
		t.Fatalf("expected 56000, got %d", got)
	}
}

func TestWriteWAVHeader(t *testing.T) {
	pcm := int16LE(1, 2, 3)
	wav := WriteWAV(pcm, 8000, Width16)

	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE magic")
	}
	if string(wav[36:40]) != "data" {
		t.Fatalf("missing data chunk id")
	}
	dataLen := uint32(wav[40]) | uint32(wav[41])<<8 | uint32(wav[42])<<16 | uint32(wav[43])<<24
	if int(dataLen) != len(pcm) {
		t.Fatalf("expected data chunk len %d, got %d", len(pcm), dataLen)
	}
	if string(wav[44:]) != string(pcm) {
		t.Fatalf("pcm payload mismatch")
	}
}
