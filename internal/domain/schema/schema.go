// Package schema defines schema registry domain entities.
package schema

import "strings"

// Schema types supported by Confluent-style registries.
const (
	TypeAvro     = "AVRO"
	TypeJSON     = "JSON"
	TypeProtobuf = "PROTOBUF"
)

// DefaultContext is the unnamed context every registry has.
const DefaultContext = "."

// Schema is one registered schema body: a subject at a specific version.
type Schema struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
	ID      int    `json:"id"`
	Type    string `json:"schemaType"`
	Body    string `json:"schema"`
}

// RegistryInfo describes one configured registry without credentials.
type RegistryInfo struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	ReadOnly bool   `json:"read_only"`
}

// SetDiff is the three-way partition of two string sets.
type SetDiff struct {
	SourceOnly []string `json:"source_only"`
	TargetOnly []string `json:"target_only"`
	Common     []string `json:"common"`
}

// RegistryDiff is the result of comparing two registries (or two contexts).
type RegistryDiff struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Subjects SetDiff `json:"subjects"`
	Contexts SetDiff `json:"contexts,omitempty"`
}

// Stats summarizes one registry's contents.
type Stats struct {
	Registry  string         `json:"registry"`
	Contexts  int            `json:"contexts"`
	Subjects  int            `json:"subjects"`
	Versions  int            `json:"versions"`
	BySubject map[string]int `json:"versions_by_subject,omitempty"`
}

// QualifySubject prefixes a subject with a Confluent context qualifier.
// Subjects in the default context are addressed by their bare name; a subject
// "s" in context "ctx" is addressed as ":.ctx:s".
func QualifySubject(context, subject string) string {
	if context == "" || context == DefaultContext {
		return subject
	}
	context = strings.TrimPrefix(context, ".")
	return ":." + context + ":" + subject
}
