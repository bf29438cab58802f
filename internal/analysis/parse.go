package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparsable is returned by ParseReply when the model's reply contains
// no parsable JSON. Callers treat it as "analysis unavailable": the upload
// succeeded but no assessment can be shown and the alert stage is skipped.
var ErrUnparsable = errors.New("analysis: model reply is not parsable")

// fence is the delimiter models wrap structured answers in.
const fence = "```"

// ParseReply extracts a [Result] from a model reply.
//
// The reply may be plain JSON or JSON wrapped in a fenced code block
// (with or without a "json" language tag). Direct parse is attempted first;
// on failure the fenced interior is extracted and parsed. A reply whose JSON
// is a top-level array is reduced to a single situation: highest severity
// wins, ties go to the first-listed entry. Any total failure yields
// [ErrUnparsable] — never a panic and never a raw decoder error.
func ParseReply(reply string) (*Result, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, ErrUnparsable
	}

	if r, err := parseJSON(reply); err == nil {
		return r, nil
	}

	inner, ok := extractFenced(reply)
	if !ok {
		return nil, ErrUnparsable
	}
	r, err := parseJSON(inner)
	if err != nil {
		return nil, ErrUnparsable
	}
	return r, nil
}

// parseJSON decodes s as either a single Result object or an array of them.
func parseJSON(s string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err == nil {
		return &r, nil
	}

	var list []Result
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrUnparsable
	}
	return mostSevere(list), nil
}

// mostSevere picks the single situation to report from a multi-item reply.
// The prompt asks for one item, but the instruction is advisory; when the
// model lists several anyway, the highest severity wins and ties keep the
// first-listed entry.
func mostSevere(list []Result) *Result {
	best := 0
	for i := 1; i < len(list); i++ {
		if list[i].Severity.rank() > list[best].Severity.rank() {
			best = i
		}
	}
	return &list[best]
}

// extractFenced returns the substring between the first fence marker and the
// next one. A language tag directly after the opening fence (e.g. "json") is
// dropped. Returns ok=false when no complete fenced block exists.
func extractFenced(s string) (string, bool) {
	start := strings.Index(s, fence)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(fence):]

	// Drop a language tag on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "json" || tag == "JSON" {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
