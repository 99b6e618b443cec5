// Package panels implements the Panel / Summary Emission component
// (spec.md §4.7, component C7): one enveloped JSON file per panel plus
// a manifest of content hashes, written with the teacher's atomic
// write-to-temp-then-rename discipline (infrastructure/cache,
// pkg/storage/postgres).
package panels

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayushrajani07/g6-collector/internal/fingerprint"
)

// schemaVersion is the panel-envelope-v1 schema named in spec.md §4.7.
const schemaVersion = "panel-envelope-v1"

// Envelope is one panel's enveloped JSON document.
type Envelope struct {
	Panel     string      `json:"panel"`
	Version   int         `json:"version"`
	GeneratedAt string    `json:"generated_at"`
	UpdatedAt string      `json:"updated_at"`
	Data      interface{} `json:"data"`
	Meta      EnvelopeMeta `json:"meta"`
}

// EnvelopeMeta carries the envelope's provenance and integrity hash.
type EnvelopeMeta struct {
	Source string `json:"source"`
	Schema string `json:"schema"`
	Hash   string `json:"hash"`
}

// BuildEnvelope constructs an Envelope for a panel, computing the
// 12-hex data hash spec.md §4.7 requires.
func BuildEnvelope(panel, source string, data interface{}, generatedAt, updatedAt time.Time) (Envelope, error) {
	hash, err := fingerprint.Truncated(data, 12)
	if err != nil {
		return Envelope{}, fmt.Errorf("hash panel %s: %w", panel, err)
	}
	return Envelope{
		Panel:       panel,
		Version:     1,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   updatedAt.UTC().Format(time.RFC3339),
		Data:        data,
		Meta: EnvelopeMeta{
			Source: source,
			Schema: schemaVersion,
			Hash:   hash,
		},
	}, nil
}

// FullHash is the manifest-grade full SHA-256 over the same canonical
// data projection the envelope's 12-hex meta.hash is truncated from.
func FullHash(data interface{}) (string, error) {
	return fingerprint.SHA256Hex(data)
}

// writeAtomic writes content to path via a temp file in the same
// directory followed by rename, so a reader never observes a partial
// write, matching the teacher's replace-then-rename discipline.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return writeAtomic(path, content)
}

func envelopeFileName(panel string) string {
	return panel + "_enveloped.json"
}

func marshalIndent(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
