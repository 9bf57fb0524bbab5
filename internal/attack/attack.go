// Package attack provides ATT&CK technique lookup for the validate stage.
// The resolver is always constructed explicitly and passed in; there is no
// package-level singleton, so callers own initialization order.
package attack

import (
	"regexp"
	"sort"
)

// Technique is a single ATT&CK technique entry.
type Technique struct {
	ID     string
	Name   string
	Tactic string
}

// Resolver maps technique IDs to technique metadata.
type Resolver interface {
	// Resolve returns the technique for an ID like "T1047" or "T1059.001".
	Resolve(id string) (Technique, bool)
}

// ValidTactics is the set of recognized ATT&CK tactic names.
var ValidTactics = map[string]bool{
	"Initial Access":       true,
	"Execution":            true,
	"Persistence":          true,
	"Privilege Escalation": true,
	"Defense Evasion":      true,
	"Credential Access":    true,
	"Discovery":            true,
	"Lateral Movement":     true,
	"Collection":           true,
	"Command and Control":  true,
	"Exfiltration":         true,
	"Impact":               true,
}

var techniquePattern = regexp.MustCompile(`\bT\d{4}(?:\.\d{3})?\b`)

// FindTechniqueIDs returns the distinct technique IDs mentioned in text,
// sorted for stable output.
func FindTechniqueIDs(text string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range techniquePattern.FindAllString(text, -1) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// StaticResolver is an in-memory resolver seeded with a baseline technique
// table. Dataset refresh happens outside this process.
type StaticResolver struct {
	byID map[string]Technique
}

var _ Resolver = (*StaticResolver)(nil)

// baseline covers the techniques that appear most often in submitted CTI.
// Sub-techniques fall back to their parent's entry.
var baseline = []Technique{
	{ID: "T1003", Name: "OS Credential Dumping", Tactic: "Credential Access"},
	{ID: "T1021", Name: "Remote Services", Tactic: "Lateral Movement"},
	{ID: "T1027", Name: "Obfuscated Files or Information", Tactic: "Defense Evasion"},
	{ID: "T1041", Name: "Exfiltration Over C2 Channel", Tactic: "Exfiltration"},
	{ID: "T1047", Name: "Windows Management Instrumentation", Tactic: "Execution"},
	{ID: "T1053", Name: "Scheduled Task/Job", Tactic: "Execution"},
	{ID: "T1055", Name: "Process Injection", Tactic: "Defense Evasion"},
	{ID: "T1059", Name: "Command and Scripting Interpreter", Tactic: "Execution"},
	{ID: "T1071", Name: "Application Layer Protocol", Tactic: "Command and Control"},
	{ID: "T1078", Name: "Valid Accounts", Tactic: "Initial Access"},
	{ID: "T1082", Name: "System Information Discovery", Tactic: "Discovery"},
	{ID: "T1105", Name: "Ingress Tool Transfer", Tactic: "Command and Control"},
	{ID: "T1110", Name: "Brute Force", Tactic: "Credential Access"},
	{ID: "T1136", Name: "Create Account", Tactic: "Persistence"},
	{ID: "T1190", Name: "Exploit Public-Facing Application", Tactic: "Initial Access"},
	{ID: "T1486", Name: "Data Encrypted for Impact", Tactic: "Impact"},
	{ID: "T1539", Name: "Steal Web Session Cookie", Tactic: "Credential Access"},
	{ID: "T1543", Name: "Create or Modify System Process", Tactic: "Persistence"},
	{ID: "T1548", Name: "Abuse Elevation Control Mechanism", Tactic: "Privilege Escalation"},
	{ID: "T1566", Name: "Phishing", Tactic: "Initial Access"},
	{ID: "T1567", Name: "Exfiltration Over Web Service", Tactic: "Exfiltration"},
	{ID: "T1574", Name: "Hijack Execution Flow", Tactic: "Persistence"},
}

// NewStaticResolver builds a resolver from the baseline table plus any
// extra entries (extras win on ID collision).
func NewStaticResolver(extras ...Technique) *StaticResolver {
	byID := make(map[string]Technique, len(baseline)+len(extras))
	for _, t := range baseline {
		byID[t.ID] = t
	}
	for _, t := range extras {
		byID[t.ID] = t
	}
	return &StaticResolver{byID: byID}
}

// Resolve looks up a technique ID. Sub-technique IDs ("T1059.001") resolve
// to the parent technique when no exact entry exists.
func (r *StaticResolver) Resolve(id string) (Technique, bool) {
	if t, ok := r.byID[id]; ok {
		return t, true
	}
	if len(id) > 5 && id[5] == '.' {
		if t, ok := r.byID[id[:5]]; ok {
			return t, true
		}
	}
	return Technique{}, false
}
