package orchestrator

import (
	"sort"
	"strings"

	"github.com/ayushrajani07/g6-collector/internal/fingerprint"
	"github.com/ayushrajani07/g6-collector/internal/logging"
)

// maskedKeys lists field names masked before hashing/logging a startup
// summary, so a credential value never lands in a log line or a hash
// that might be compared across deployments in plaintext.
var maskedKeys = map[string]bool{
	"api_key": true, "access_token": true, "secret": true,
	"password": true, "token": true, "credential": true,
}

// StartupSummary is one of the one-shot structured lines emitted at
// process start, per spec.md §4.5 "Startup summaries".
type StartupSummary struct {
	Name   string
	Fields map[string]interface{}
	Hash   string // truncated 16-hex over masked fields
}

func mask(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		lk := strings.ToLower(k)
		if maskedKeys[lk] {
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}

// BuildSummary masks sensitive fields and computes its truncated hash.
// Key ordering in the returned Fields map is not itself meaningful
// (Go maps are unordered); determinism comes from fingerprint.Canonical
// sorting keys during JSON marshaling before hashing.
func BuildSummary(name string, fields map[string]interface{}) StartupSummary {
	masked := mask(fields)
	hash, _ := fingerprint.Truncated(masked, 16)
	return StartupSummary{Name: name, Fields: masked, Hash: hash}
}

// CompositeHash combines a set of summaries' hashes into one drift
// detection fingerprint, stable regardless of the order summaries were
// built in.
func CompositeHash(summaries []StartupSummary) string {
	hashes := make([]string, len(summaries))
	for i, s := range summaries {
		hashes[i] = s.Name + ":" + s.Hash
	}
	sort.Strings(hashes)
	composite, _ := fingerprint.Truncated(map[string]interface{}{"hashes": hashes}, 16)
	return composite
}

// LogStartupSummaries emits each summary plus the composite hash as
// one-shot structured info lines.
func LogStartupSummaries(log *logging.Logger, summaries []StartupSummary) {
	if log == nil {
		return
	}
	for _, s := range summaries {
		log.WithFields(map[string]interface{}{
			"event": "startup.summary",
			"name":  s.Name,
			"hash":  s.Hash,
		}).Info("startup summary")
	}
	log.WithFields(map[string]interface{}{
		"event":     "startup.composite",
		"composite": CompositeHash(summaries),
	}).Info("startup composite hash")
}
