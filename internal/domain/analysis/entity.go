package analysis

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrImageRequired is returned when a request carries no image bytes.
var ErrImageRequired = errors.New("image is required")

// OutputFormat selects which contract the model is asked to follow.
type OutputFormat string

const (
	// FormatJSON asks for the six sections as one JSON object.
	FormatJSON OutputFormat = "json"
	// FormatText asks for free text under headings, shown as one block.
	FormatText OutputFormat = "text"
)

// ParseFormat accepts "json", "text" or an empty string (json).
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Request is one user submission. It lives for a single request cycle.
type Request struct {
	Image          []byte
	Filename       string
	ContentType    string
	MedicalHistory string
	Symptoms       string
	Format         OutputFormat
}

func (r Request) Validate() error {
	if len(r.Image) == 0 {
		return ErrImageRequired
	}
	return nil
}

// StructuredAnalysis holds the six sections extracted from a model reply.
type StructuredAnalysis struct {
	VisualFindings          string `json:"visual_findings"`
	KeyDiagnosticIndicators string `json:"key_diagnostic_indicators"`
	ContextualInsights      string `json:"contextual_insights"`
	SymptomCorrelation      string `json:"symptom_correlation"`
	DiagnosedDiseases       string `json:"diagnosed_diseases"`
	TreatmentPlan           string `json:"treatment_plan"`
}

func (a *StructuredAnalysis) field(s Section) *string {
	switch s {
	case VisualFindings:
		return &a.VisualFindings
	case KeyDiagnosticIndicators:
		return &a.KeyDiagnosticIndicators
	case ContextualInsights:
		return &a.ContextualInsights
	case SymptomCorrelation:
		return &a.SymptomCorrelation
	case DiagnosedDiseases:
		return &a.DiagnosedDiseases
	case TreatmentPlan:
		return &a.TreatmentPlan
	}
	return nil
}

// Get returns the value of a section, or "" for an unknown section.
func (a StructuredAnalysis) Get(s Section) string {
	if p := a.field(s); p != nil {
		return *p
	}
	return ""
}

// Set stores v under s. Unknown sections are ignored.
func (a *StructuredAnalysis) Set(s Section, v string) {
	if p := a.field(s); p != nil {
		*p = v
	}
}

// Missing lists the sections whose value is blank, in presentation order.
func (a StructuredAnalysis) Missing() []Section {
	var out []Section
	for _, s := range Sections {
		if strings.TrimSpace(a.Get(s)) == "" {
			out = append(out, s)
		}
	}
	return out
}

// IsEmpty reports whether every section is blank.
func (a StructuredAnalysis) IsEmpty() bool {
	return len(a.Missing()) == len(Sections)
}

// Source names how a section value was obtained.
type Source string

const (
	SourceStrict   Source = "strict"
	SourceSalvage  Source = "salvage"
	SourceRepair   Source = "repair"
	SourceFallback Source = "section_fallback"
	SourceNone     Source = ""
)

// Result is what the service hands to presenters.
type Result struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Format     OutputFormat       `json:"format"`
	Model      string             `json:"model"`
	Raw        string             `json:"raw"`
	Analysis   StructuredAnalysis `json:"analysis"`
	Provenance map[Section]Source `json:"provenance,omitempty"`
	Preview    string             `json:"-"`
}
