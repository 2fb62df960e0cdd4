package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// WriteWAV wraps raw PCM bytes in a standard mono RIFF/WAVE header: format
// tag 1 (PCM), the given sample rate, and sampleWidth*8 bits per sample.
func WriteWAV(pcm []byte, sampleRate int, width SampleWidth) []byte {
	const numChannels = 1
	bitsPerSample := uint16(width) * 8
	byteRate := uint32(sampleRate) * uint32(numChannels) * uint32(width)
	blockAlign := uint16(numChannels) * uint16(width)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bitsPerSample)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WAVDuration parses a standard RIFF/WAVE file's fmt and data chunks and
// returns the playback duration implied by its byte rate and data size.
func WAVDuration(path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, fmt.Errorf("audio: %s is not a RIFF/WAVE file", path)
	}

	numChannels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	byteRate := uint64(sampleRate) * uint64(numChannels) * uint64(bitsPerSample) / 8
	if byteRate == 0 {
		return 0, fmt.Errorf("audio: %s has zero byte rate", path)
	}

	// Find the data chunk by scanning chunk headers, in case extra chunks
	// (LIST, fact, ...) precede it.
	offset := 12
	var dataSize uint32
	found := false
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if chunkID == "data" {
			dataSize = chunkSize
			found = true
			break
		}
		offset += 8 + int(chunkSize)
		if chunkSize%2 == 1 {
			offset++
		}
	}
	if !found {
		return 0, fmt.Errorf("audio: %s has no data chunk", path)
	}

	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

// OpenWAVPCM opens a RIFF/WAVE file and seeks past its header chunks to the
// start of raw PCM sample data, returning a ReadCloser over just that PCM
// stream. The caller is responsible for Close.
func OpenWAVPCM(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("audio: %s: read riff header: %w", path, err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		f.Close()
		return nil, fmt.Errorf("audio: %s is not a RIFF/WAVE file", path)
	}

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("audio: %s has no data chunk: %w", path, err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		if chunkID == "data" {
			return f, nil
		}
		skip := chunkSize
		if chunkSize%2 == 1 {
			skip++
		}
		if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
			f.Close()
			return nil, fmt.Errorf("audio: %s: seek past %s chunk: %w", path, chunkID, err)
		}
	}
}
