// Package state encodes pipeline state as a delimited JSON block embedded
// in a ticket body. The ticket is human-editable, so decoding is total:
// malformed state is indistinguishable from absent state and recovers to
// the default.
//
// The block looks like:
//
//	<!-- HUNTFORGE-PIPELINE-STATE
//	{
//	  "version": "1.0",
//	  "stage": "extract",
//	  "status": "pending",
//	  ...
//	}
//	-->
package state

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

const (
	// Version is the current state schema tag.
	Version = "1.0"

	startMarker = "<!-- HUNTFORGE-PIPELINE-STATE"
	endMarker   = "-->"
)

// Stage names one step of the linear pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageGenerate Stage = "generate"
	StageReview   Stage = "review"
	StageCommit   Stage = "commit"
)

var stageOrder = []Stage{StageExtract, StageValidate, StageGenerate, StageReview, StageCommit}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Known reports whether s is one of the defined pipeline stages.
func (s Stage) Known() bool {
	for _, st := range stageOrder {
		if s == st {
			return true
		}
	}
	return false
}

// Next returns the stage that follows s. ok is false for the terminal
// stage and for unknown stages.
func (s Stage) Next() (next Stage, ok bool) {
	for i, st := range stageOrder[:len(stageOrder)-1] {
		if s == st {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Status is the execution status of the current stage.
type Status string

// Stage statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// State is the durable pipeline state carried in the ticket body.
type State struct {
	Version   string
	Stage     Stage
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Error     string

	// Results maps a stage name to that stage's result payload. Entries
	// are append-only: later stages never remove an earlier stage's key.
	Results map[string]json.RawMessage
}

// coreKeys are the fixed schema fields; everything else in the block is a
// stage-result namespace.
var coreKeys = map[string]bool{
	"version":    true,
	"stage":      true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
	"error":      true,
}

// Default returns a fresh initial state with current timestamps.
func Default() State {
	now := time.Now().UTC()
	return State{
		Version:   Version,
		Stage:     StageExtract,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// locate finds the first well-formed block: the first start marker that is
// followed by an end marker. Returns the byte range covering the whole
// block including both markers.
func locate(doc string) (start, end int, ok bool) {
	i := strings.Index(doc, startMarker)
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(doc[i:], endMarker)
	if j < 0 {
		return 0, 0, false
	}
	return i, i + j + len(endMarker), true
}

// Decode extracts pipeline state from a ticket body. It never fails:
// a missing block, unparseable payload, or absent required field yields
// the default initial state.
func Decode(doc string) State {
	start, end, ok := locate(doc)
	if !ok {
		return Default()
	}
	payload := doc[start+len(startMarker) : end-len(endMarker)]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Default()
	}

	version, okV := rawString(raw["version"])
	stage, okSt := rawString(raw["stage"])
	status, okS := rawString(raw["status"])
	if !okV || !okSt || !okS || version == "" || stage == "" || status == "" {
		return Default()
	}

	s := State{
		Version:   version,
		Stage:     Stage(stage),
		Status:    Status(status),
		CreatedAt: rawTime(raw["created_at"]),
		UpdatedAt: rawTime(raw["updated_at"]),
	}
	if msg, ok := rawString(raw["error"]); ok {
		s.Error = msg
	}
	for k, v := range raw {
		if coreKeys[k] {
			continue
		}
		if s.Results == nil {
			s.Results = make(map[string]json.RawMessage)
		}
		s.Results[k] = v
	}
	return s
}

func rawString(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func rawTime(raw json.RawMessage) time.Time {
	s, ok := rawString(raw)
	if !ok {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// Encode serializes s into a marker-delimited block. Field order is fixed
// (core fields, then stage results in pipeline order, then any remaining
// namespaces sorted) so successive encodings diff cleanly.
func Encode(s State) string {
	var b strings.Builder
	b.WriteString(startMarker)
	b.WriteString("\n{\n")

	writeField(&b, "version", s.Version, false)
	writeField(&b, "stage", string(s.Stage), false)
	writeField(&b, "status", string(s.Status), false)
	writeField(&b, "created_at", s.CreatedAt.UTC().Format(time.RFC3339), false)

	rest := resultKeys(s.Results)
	last := s.Error == "" && len(rest) == 0
	writeField(&b, "updated_at", s.UpdatedAt.UTC().Format(time.RFC3339), last)
	if s.Error != "" {
		writeField(&b, "error", s.Error, len(rest) == 0)
	}
	for i, k := range rest {
		b.WriteString("  ")
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteString(": ")
		b.Write(s.Results[k])
		if i < len(rest)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}

	b.WriteString("}\n")
	b.WriteString(endMarker)
	return b.String()
}

func writeField(b *strings.Builder, key, value string, last bool) {
	b.WriteString("  ")
	k, _ := json.Marshal(key)
	b.Write(k)
	b.WriteString(": ")
	v, _ := json.Marshal(value)
	b.Write(v)
	if !last {
		b.WriteByte(',')
	}
	b.WriteByte('\n')
}

// resultKeys orders stage-result namespaces: pipeline stages first, in
// execution order, then any other keys sorted.
func resultKeys(results map[string]json.RawMessage) []string {
	if len(results) == 0 {
		return nil
	}
	var keys []string
	seen := make(map[string]bool)
	for _, st := range stageOrder {
		if _, ok := results[string(st)]; ok {
			keys = append(keys, string(st))
			seen[string(st)] = true
		}
	}
	var extra []string
	for k := range results {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// StripBlock returns doc with the first well-formed state block removed.
// Stage work reads the stripped document so the block never leaks into
// extracted content. A doc without a block is returned unchanged.
func StripBlock(doc string) string {
	start, end, ok := locate(doc)
	if !ok {
		return doc
	}
	return doc[:start] + doc[end:]
}

// Updates is a partial state delta applied by Merge. Zero-valued fields
// are left unchanged; Results entries are merged by key.
type Updates struct {
	Stage  Stage
	Status Status
	Error  string
	// ClearError removes a recorded error, for a stage that succeeds
	// after an earlier failed run.
	ClearError bool
	Results    map[string]json.RawMessage
}

// Result marshals a stage payload for use in Updates.Results.
func Result(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Merge decodes the current state from doc, applies u over it, stamps
// updated_at, and re-embeds the block: replacing the first well-formed
// block in place, or appending after the document's trailing whitespace
// when no block exists. Every byte outside the block is preserved
// verbatim.
func Merge(doc string, u Updates) string {
	s := Decode(doc)
	if u.Stage != "" {
		s.Stage = u.Stage
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	if u.Error != "" {
		s.Error = u.Error
	}
	if u.ClearError {
		s.Error = ""
	}
	for k, v := range u.Results {
		if s.Results == nil {
			s.Results = make(map[string]json.RawMessage)
		}
		s.Results[k] = v
	}
	s.UpdatedAt = time.Now().UTC()

	block := Encode(s)
	if start, end, ok := locate(doc); ok {
		return doc[:start] + block + doc[end:]
	}
	if doc == "" {
		return block + "\n"
	}
	sep := "\n\n"
	if strings.HasSuffix(doc, "\n\n") {
		sep = ""
	} else if strings.HasSuffix(doc, "\n") {
		sep = "\n"
	}
	return doc + sep + block + "\n"
}
