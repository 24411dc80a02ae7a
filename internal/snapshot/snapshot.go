// Package snapshot exports and imports colony memory as a zstd-compressed
// document: one JSON header line followed by the JSON memory body.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/marcus/hivemind/internal/state"
)

const (
	formatName    = "hivemind-memory"
	formatVersion = 1
)

// ErrBadFormat is returned for files that are not memory snapshots.
var ErrBadFormat = errors.New("not a hivemind memory snapshot")

// Header precedes the memory body.
type Header struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	Tick       int64     `json:"tick"`
	Tasks      int       `json:"tasks"`
	Creeps     int       `json:"creeps"`
	ExportedAt time.Time `json:"exported_at"`
}

// Export writes data to w.
func Export(w io.Writer, data state.StateData) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}

	bw := bufio.NewWriter(enc)
	header := Header{
		Format:     formatName,
		Version:    formatVersion,
		Tick:       data.Tick,
		Tasks:      len(data.Tasks),
		Creeps:     len(data.Creeps),
		ExportedAt: time.Now().UTC(),
	}
	je := json.NewEncoder(bw)
	if err := je.Encode(header); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encoding header: %w", err)
	}
	if err := je.Encode(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encoding memory: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("flushing snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}
	return nil
}

// Import reads a snapshot written by Export.
func Import(r io.Reader) (Header, state.StateData, error) {
	var header Header
	var data state.StateData

	dec, err := zstd.NewReader(r)
	if err != nil {
		return header, data, fmt.Errorf("creating decoder: %w", err)
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReader(dec))
	if err := jd.Decode(&header); err != nil {
		return header, data, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if header.Format != formatName {
		return header, data, fmt.Errorf("%w: format %q", ErrBadFormat, header.Format)
	}
	if header.Version != formatVersion {
		return header, data, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, header.Version)
	}
	if err := jd.Decode(&data); err != nil {
		return header, data, fmt.Errorf("decoding memory: %w", err)
	}
	return header, data, nil
}

// ExportFile writes data to path.
func ExportFile(path string, data state.StateData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Export(f, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ImportFile reads a snapshot from path.
func ImportFile(path string) (Header, state.StateData, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, state.StateData{}, err
	}
	defer f.Close()
	return Import(f)
}
