// Package audio provides the pure, stateless functions the Recorder uses
// to measure and extract pieces of a growing PCM recording file: a
// tail-window RMS level and byte-range extraction. Neither function holds
// a file handle open; each call opens, reads, and closes.
package audio

import (
	"math"
	"os"

	"github.com/chris17453/echomatrix/internal/errs"
)

// SampleWidth is the number of bytes per PCM sample. Only 1, 2, and 4 are
// supported.
type SampleWidth int

const (
	Width8  SampleWidth = 1
	Width16 SampleWidth = 2
	Width32 SampleWidth = 4
)

// RMSOfTail reads the last windowSeconds worth of audio from path (by wall
// rate: sampleRate * width bytes per second), clamped to the file's actual
// size, and returns the root-mean-square level of that tail. It returns 0
// if the file is missing, empty, or width is unsupported — these are not
// treated as hard errors because a not-yet-flushed recording file is an
// expected, transient condition for a poller.
func RMSOfTail(path string, sampleRate int, width SampleWidth, windowSeconds float64) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return 0
	}

	wantBytes := int64(windowSeconds * float64(sampleRate) * float64(width))
	size := info.Size()
	readBytes := wantBytes
	if readBytes > size {
		readBytes = size
	}
	// Align down to a whole number of samples.
	readBytes -= readBytes % int64(width)
	if readBytes <= 0 {
		return 0
	}

	buf := make([]byte, readBytes)
	if _, err := f.ReadAt(buf, size-readBytes); err != nil {
		return 0
	}

	return rms(buf, width)
}

func rms(buf []byte, width SampleWidth) float64 {
	n := len(buf) / int(width)
	if n == 0 {
		return 0
	}

	var sumSquares float64
	switch width {
	case Width8:
		for i := 0; i < n; i++ {
			v := float64(buf[i]) - 128
			sumSquares += v * v
		}
	case Width16:
		for i := 0; i < n; i++ {
			v := int16(uint16(buf[2*i]) | uint16(buf[2*i+1])<<8)
			f := float64(v)
			sumSquares += f * f
		}
	case Width32:
		for i := 0; i < n; i++ {
			v := int32(uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24)
			f := float64(v)
			sumSquares += f * f
		}
	default:
		return 0
	}

	return math.Sqrt(sumSquares / float64(n))
}

// ExtractRange reads the byte range [start, end) from path, clamping end to
// the file size. It fails with errs.InvalidRange if start is negative,
// start >= end, or start is at or beyond the file size.
func ExtractRange(path string, start, end int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileNotFound, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.FileNotFound, path, err)
	}
	size := info.Size()

	if start < 0 || start >= end {
		return nil, errs.New(errs.InvalidRange, "start must be >= 0 and < end")
	}
	if start >= size {
		return nil, errs.New(errs.InvalidRange, "start is beyond end of file")
	}
	if end > size {
		end = size
	}

	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return nil, errs.Wrap(errs.FileNotFound, path, err)
	}
	return buf, nil
}

// MsToByteOffset converts a millisecond offset to a PCM byte offset at the
// given sample rate and sample width, per pcm_byte = floor(ms * rate *
// width / 1000).
func MsToByteOffset(ms int64, sampleRate int, width SampleWidth) int64 {
	return ms * int64(sampleRate) * int64(width) / 1000
}
