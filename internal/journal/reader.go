package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// FrameRecord is one rehydrated frame from the frame track.
type FrameRecord struct {
	Seq        uint64
	CapturedAt time.Time
	Pixels     []byte
}

// ReadManifest loads a bundle's manifest.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// ReadEvents rehydrates the full event log of a bundle in sequence order.
func ReadEvents(dir string) ([]Event, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(dir, m.EventsPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, nil
}

// ReadFrames rehydrates the frame track of a bundle in capture order.
func ReadFrames(dir string) ([]FrameRecord, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(dir, m.FramesPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var frames []FrameRecord
	offset := 0
	for offset+20 <= len(raw) {
		seq := binary.LittleEndian.Uint64(raw[offset : offset+8])
		captured := int64(binary.LittleEndian.Uint64(raw[offset+8 : offset+16]))
		size := int(binary.LittleEndian.Uint32(raw[offset+16 : offset+20]))
		offset += 20
		if offset+size > len(raw) {
			return nil, fmt.Errorf("truncated frame record at offset %d", offset-20)
		}
		pixels := append([]byte(nil), raw[offset:offset+size]...)
		offset += size
		frames = append(frames, FrameRecord{
			Seq:        seq,
			CapturedAt: time.Unix(0, captured).UTC(),
			Pixels:     pixels,
		})
	}
	return frames, nil
}

// ListBundles returns the bundle directories under root, newest last.
func ListBundles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
