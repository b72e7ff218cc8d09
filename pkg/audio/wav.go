package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	outBitDepth    = 16
)

// ReadWAV loads a PCM or IEEE-float WAV file and collapses it to mono.
func ReadWAV(path string) (Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Signal{}, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return Signal{}, fmt.Errorf("%w: %s: %v", ErrInputNotFound, path, err)
	}
	defer func() { _ = f.Close() }()

	sig, err := DecodeWAV(f)
	if err != nil {
		return Signal{}, fmt.Errorf("%s: %w", path, err)
	}
	return sig, nil
}

// DecodeWAV decodes integer PCM or 32/64-bit IEEE-float WAV data from r
// and collapses it to mono.
func DecodeWAV(r io.ReadSeeker) (Signal, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Signal{}, fmt.Errorf("%w: not a WAV file", ErrInvalidFormat)
	}
	switch d.WavAudioFormat {
	case wavFormatPCM:
		return decodePCM(d)
	case wavFormatFloat:
		return decodeFloat(d)
	default:
		return Signal{}, fmt.Errorf("%w: unsupported WAV encoding %d (PCM or IEEE float only)", ErrInvalidFormat, d.WavAudioFormat)
	}
}

func decodePCM(d *wav.Decoder) (Signal, error) {
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return Signal{}, fmt.Errorf("%w: missing format chunk", ErrInvalidFormat)
	}

	bitDepth := int(d.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return Signal{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFormat, bitDepth)
	}

	interleaved := make([]float32, len(buf.Data))
	scale := float64(int64(1) << (bitDepth - 1))
	for i, v := range buf.Data {
		if bitDepth == 8 {
			// 8-bit WAV is unsigned
			interleaved[i] = float32((float64(v) - 128) / 128)
			continue
		}
		interleaved[i] = float32(float64(v) / scale)
	}

	mono := Downmix(interleaved, buf.Format.NumChannels)
	return Signal{Samples: mono, SampleRate: buf.Format.SampleRate}, nil
}

// decodeFloat reads the data chunk directly; the integer buffer path
// cannot carry float samples.
func decodeFloat(d *wav.Decoder) (Signal, error) {
	if d.BitDepth != 32 && d.BitDepth != 64 {
		return Signal{}, fmt.Errorf("%w: unsupported float bit depth %d", ErrInvalidFormat, d.BitDepth)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return Signal{}, fmt.Errorf("%w: missing format chunk", ErrInvalidFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if d.PCMChunk == nil {
		return Signal{}, fmt.Errorf("%w: missing data chunk", ErrInvalidFormat)
	}

	width := int(d.BitDepth) / 8
	raw := make([]byte, d.PCMChunk.Size-d.PCMChunk.Size%width)
	if _, err := io.ReadFull(d.PCMChunk, raw); err != nil {
		return Signal{}, fmt.Errorf("%w: truncated data chunk: %v", ErrInvalidFormat, err)
	}

	interleaved := make([]float32, len(raw)/width)
	for i := range interleaved {
		b := raw[i*width:]
		var v float64
		if width == 4 {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		} else {
			v = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		if !isFinite(v) {
			v = 0
		}
		interleaved[i] = float32(v)
	}

	mono := Downmix(interleaved, int(d.NumChans))
	return Signal{Samples: mono, SampleRate: int(d.SampleRate)}, nil
}

// WriteWAV writes a mono 16-bit PCM WAV file, clamping samples to [-1, 1].
// Parent directories are created as needed.
func WriteWAV(path string, s Signal) error {
	return WriteWAVChannels(path, s.SampleRate, s.Samples)
}

// WriteWAVChannels writes one or more equally long channels as an
// interleaved 16-bit PCM WAV file.
func WriteWAVChannels(path string, sampleRate int, channels ...[]float32) error {
	if len(channels) == 0 {
		return errors.New("no channels to write")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	frames := len(channels[0])
	for _, ch := range channels[1:] {
		frames = min(frames, len(ch))
	}

	numChans := len(channels)
	data := make([]int, frames*numChans)
	peak := float64(int64(1)<<(outBitDepth-1) - 1)
	for i := 0; i < frames; i++ {
		for c, ch := range channels {
			data[i*numChans+c] = int(float64(clampSample(ch[i])) * peak)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, outBitDepth, numChans, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: outBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}
