// Package validate accepts or rejects fetched content before it is handed
// to extraction or written as a snapshot. The same checks run on a fresh
// live body and on a re-read cached snapshot, so a corrupted cached file is
// caught identically to a corrupted live response.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"careers-scraper/pkg/detect"
)

// ExtractionMode names the downstream extraction strategy for a provider.
// The validator uses it to pick shape rules; extraction itself lives outside
// this module.
type ExtractionMode string

const (
	ModeAshby        ExtractionMode = "ashby"
	ModeJSONLD       ExtractionMode = "jsonld"
	ModeHTMLList     ExtractionMode = "html_list"
	ModeSnapshotJSON ExtractionMode = "snapshot_json"
)

// IsValid reports whether m is a known extraction mode.
func (m ExtractionMode) IsValid() bool {
	switch m {
	case ModeAshby, ModeJSONLD, ModeHTMLList, ModeSnapshotJSON:
		return true
	}
	return false
}

// Default size floors. Marketing-site HTML below a couple of KB is a
// near-certain error or challenge page; API payloads can be much smaller.
const (
	DefaultMinHTMLBytes = 2048
	DefaultMinJSONBytes = 64
)

// Rules carries the per-provider validation knobs.
type Rules struct {
	Mode         ExtractionMode
	MinBytes     int      // 0 means mode default
	BrandMarkers []string // required substrings for ModeAshby
}

// Result is the validator verdict. Reason is empty when OK.
type Result struct {
	OK     bool
	Reason string
}

func reject(format string, args ...interface{}) Result {
	return Result{OK: false, Reason: fmt.Sprintf(format, args...)}
}

// Content checks fetched bytes against size, blocked-page, and per-mode
// shape rules. Stateless.
func Content(providerID string, content []byte, rules Rules) Result {
	if len(content) == 0 {
		return reject("empty content")
	}

	minBytes := rules.MinBytes
	if minBytes <= 0 {
		if rules.Mode == ModeSnapshotJSON {
			minBytes = DefaultMinJSONBytes
		} else {
			minBytes = DefaultMinHTMLBytes
		}
	}
	if len(content) < minBytes {
		return reject("content too small: %d bytes < %d byte floor", len(content), minBytes)
	}

	if blocked := detect.Blocked(content); blocked.Blocked {
		return reject("blocked-page marker: %s", blocked.Marker)
	}

	switch rules.Mode {
	case ModeAshby, ModeJSONLD, ModeHTMLList:
		if !hasHTMLMarkers(content) {
			return reject("missing HTML document markers for mode %s", rules.Mode)
		}
		if rules.Mode == ModeAshby {
			lower := strings.ToLower(string(content))
			for _, marker := range rules.BrandMarkers {
				if !strings.Contains(lower, strings.ToLower(marker)) {
					return reject("missing required brand marker %q", marker)
				}
			}
		}
	case ModeSnapshotJSON:
		if !json.Valid(content) {
			return reject("content is not valid JSON")
		}
	default:
		return reject("unknown extraction mode %q", rules.Mode)
	}

	return Result{OK: true}
}

// hasHTMLMarkers checks for the minimal signs of an HTML document. A byte
// scan rather than a parse: truncated snapshots must still be recognized
// (and rejected by what they lack), not error out.
func hasHTMLMarkers(content []byte) bool {
	lower := strings.ToLower(string(content))
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<!doctype html") ||
		strings.Contains(lower, "</html")
}
