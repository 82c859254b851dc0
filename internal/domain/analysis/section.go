package analysis

import "strings"

// Section is the canonical key of one fixed field of a dermatology analysis.
type Section string

const (
	VisualFindings          Section = "visual_findings"
	KeyDiagnosticIndicators Section = "key_diagnostic_indicators"
	ContextualInsights      Section = "contextual_insights"
	SymptomCorrelation      Section = "symptom_correlation"
	DiagnosedDiseases       Section = "diagnosed_diseases"
	TreatmentPlan           Section = "treatment_plan"
)

// Sections lists every section in presentation order.
var Sections = []Section{
	VisualFindings,
	KeyDiagnosticIndicators,
	ContextualInsights,
	SymptomCorrelation,
	DiagnosedDiseases,
	TreatmentPlan,
}

var headings = map[Section]string{
	VisualFindings:          "Visual Findings",
	KeyDiagnosticIndicators: "Key Diagnostic Indicators",
	ContextualInsights:      "Contextual Insights from Medical History",
	SymptomCorrelation:      "Symptom Correlation",
	DiagnosedDiseases:       "Diagnosed Diseases",
	TreatmentPlan:           "Treatment Plan",
}

// extra names models use for the same fields, already in normalized form
var extraAliases = map[string]Section{
	"findings":                                 VisualFindings,
	"visual_observations":                      VisualFindings,
	"diagnostic_indicators":                    KeyDiagnosticIndicators,
	"key_indicators":                           KeyDiagnosticIndicators,
	"contextual_insights_from_medical_history": ContextualInsights,
	"important_clinical_context":               ContextualInsights,
	"clinical_context":                         ContextualInsights,
	"medical_history_insights":                 ContextualInsights,
	"symptom_correlations":                     SymptomCorrelation,
	"symptoms_correlation":                     SymptomCorrelation,
	"diagnosed_disease":                        DiagnosedDiseases,
	"diagnosis":                                DiagnosedDiseases,
	"diagnoses":                                DiagnosedDiseases,
	"differential_diagnosis":                   DiagnosedDiseases,
	"treatment":                                TreatmentPlan,
	"treatment_plans":                          TreatmentPlan,
	"recommended_treatment":                    TreatmentPlan,
}

var aliases = buildAliases()

func buildAliases() map[string]Section {
	m := make(map[string]Section, len(Sections)*2+len(extraAliases))
	for _, s := range Sections {
		m[string(s)] = s
		m[normalizeKey(headings[s])] = s
	}
	for k, s := range extraAliases {
		m[k] = s
	}
	return m
}

// Heading returns the display title for the section.
func (s Section) Heading() string {
	if h, ok := headings[s]; ok {
		return h
	}
	return string(s)
}

// LookupSection maps a JSON key or heading as written by a model to its section.
func LookupSection(name string) (Section, bool) {
	s, ok := aliases[normalizeKey(name)]
	return s, ok
}

// normalizeKey lowercases and collapses every run of separators into one underscore.
func normalizeKey(k string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(k)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	return b.String()
}
