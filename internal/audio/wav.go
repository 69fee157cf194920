package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWAVHeader(dataLen, sampleRate int) wavHeader {
	const bitsPerSample = 16
	if sampleRate <= 0 {
		sampleRate = WireSampleRate
	}
	blockAlign := WireChannels * bitsPerSample / 8
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataLen),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   WireChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataLen),
	}
}

// WriteWAV writes mono PCM16LE audio as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	if err := binary.Write(out, binary.LittleEndian, newWAVHeader(len(pcm), sampleRate)); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := WriteWAV(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dumper writes committed utterances into a directory for offline debugging.
// A nil *Dumper is valid and writes nothing.
type Dumper struct {
	dir string
	seq atomic.Uint64
}

func NewDumper(dir string) (*Dumper, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dump dir: %w", err)
	}
	return &Dumper{dir: dir}, nil
}

// Dump writes pcm as <dir>/<label>-<unix ms>-<seq>.wav and returns the path.
func (d *Dumper) Dump(label string, pcm []byte) (string, error) {
	if d == nil || len(pcm) == 0 {
		return "", nil
	}
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, label)
	if label == "" {
		label = "utterance"
	}
	name := fmt.Sprintf("%s-%d-%d.wav", label, time.Now().UnixMilli(), d.seq.Add(1))
	path := filepath.Join(d.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteWAV(f, pcm, WireSampleRate); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
