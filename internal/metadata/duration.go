package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// fallbackBitrate is assumed when no mp3 frame can be decoded.
const fallbackBitrate = 192_000

// Duration returns the length of the audio file at path in whole seconds.
func Duration(path string) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3Duration(path)
	case ".flac":
		return flacDuration(path)
	case ".wav":
		return wavDuration(path)
	case ".m4a":
		return m4aDuration(path)
	default:
		return 0, fmt.Errorf("%w: %s", errUnsupported, filepath.Ext(path))
	}
}

func mp3Duration(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		dec     = mp3.NewDecoder(f)
		frame   mp3.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if frames == 0 && !errors.Is(err, io.EOF) {
				return estimateFromSize(f, fallbackBitrate)
			}
			break
		}
		total += frame.Duration()
		frames++
	}
	if frames == 0 {
		return 0, errors.New("no mp3 frames")
	}
	return int(total.Seconds()), nil
}

func flacDuration(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	info := stream.Info
	if info.NSamples == 0 || info.SampleRate == 0 {
		return 0, errors.New("flac stream has no sample count")
	}
	return seconds(float64(info.NSamples) / float64(info.SampleRate)), nil
}

func wavDuration(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, err
	}
	return seconds(d.Seconds()), nil
}

// m4aDuration reads timescale and duration from the mvhd atom inside moov.
func m4aDuration(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	moov, err := findAtom(f, "moov", math.MaxInt64)
	if err != nil {
		return 0, err
	}
	if _, err := findAtom(f, "mvhd", moov); err != nil {
		return 0, err
	}

	version := make([]byte, 4) // version + flags
	if err := readAtLeast(f, version); err != nil {
		return 0, err
	}

	if version[0] == 1 {
		buf := make([]byte, 8+8+4+8)
		if err := readAtLeast(f, buf); err != nil {
			return 0, err
		}
		timescale := binary.BigEndian.Uint32(buf[16:20])
		units := binary.BigEndian.Uint64(buf[20:28])
		return fromUnits(float64(units), timescale)
	}

	buf := make([]byte, 4+4+4+4)
	if err := readAtLeast(f, buf); err != nil {
		return 0, err
	}
	timescale := binary.BigEndian.Uint32(buf[8:12])
	units := binary.BigEndian.Uint32(buf[12:16])
	return fromUnits(float64(units), timescale)
}

// findAtom scans sibling atoms from the current offset until name is found
// and returns its payload size. The reader is left at the payload start.
func findAtom(r io.ReadSeeker, name string, limit int64) (int64, error) {
	head := make([]byte, 8)
	for read := int64(0); read < limit; {
		if err := readAtLeast(r, head); err != nil {
			return 0, fmt.Errorf("atom %s not found: %w", name, err)
		}
		size := int64(binary.BigEndian.Uint32(head[:4]))
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size %d", size)
		}
		if string(head[4:8]) == name {
			return size - 8, nil
		}
		if _, err := r.Seek(size-8, io.SeekCurrent); err != nil {
			return 0, err
		}
		read += size
	}
	return 0, fmt.Errorf("atom %s not found", name)
}

func fromUnits(units float64, timescale uint32) (int, error) {
	if timescale == 0 {
		return 0, errors.New("invalid timescale")
	}
	return seconds(units / float64(timescale)), nil
}

func estimateFromSize(f *os.File, bitrate int64) (int, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return int(st.Size() * 8 / bitrate), nil
}

func seconds(s float64) int {
	return int(s + 0.5)
}
