package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/derma-lens/internal/domain/analysis"
)

// NotFound is the reply the text model gives when a heading is absent.
const NotFound = "NOT_FOUND"

const protocol = `You are a board-certified dermatologist reviewing a clinical photograph of a skin condition.

Examine the image carefully. Describe texture, color, shape and size of any abnormality, its borders and distribution, and whether rashes, sores, scaling or other lesions are visible. Record these observations first; your diagnosis must follow from them rather than from a guess.

Then reason from the observations to the most likely skin diseases, explaining which findings point to which condition. Where the picture is ambiguous, list the differential diagnoses in order of likelihood.

Be precise and clinically careful, but write so that a patient without medical training can follow. Recommend in-person evaluation whenever the findings warrant it.`

// Diagnostic builds the vision prompt. History and symptoms are passed through
// unchanged; empty values are left out.
func Diagnostic(history, symptoms string, format analysis.OutputFormat) string {
	var b strings.Builder
	b.WriteString(protocol)

	if h := strings.TrimSpace(history); h != "" {
		b.WriteString("\n\nPatient medical history:\n")
		b.WriteString(h)
	}
	if s := strings.TrimSpace(symptoms); s != "" {
		b.WriteString("\n\nReported symptoms:\n")
		b.WriteString(s)
	}

	b.WriteString("\n\n")
	if format == analysis.FormatText {
		b.WriteString(headingContract())
	} else {
		b.WriteString(jsonContract())
	}
	return b.String()
}

func headingContract() string {
	var b strings.Builder
	b.WriteString("Output format. Use exactly these headings, each on its own line followed by your text:\n")
	for _, s := range analysis.Sections {
		fmt.Fprintf(&b, "\n%s:", s.Heading())
	}
	return b.String()
}

func jsonContract() string {
	var b strings.Builder
	b.WriteString("Respond with one valid JSON object only. No markdown, no commentary, no code fences.\n")
	b.WriteString("Every value is a string; use an empty string when a section does not apply.\n\nSchema:\n{\n")
	for i, s := range analysis.Sections {
		fmt.Fprintf(&b, "  %q: \"<%s>\"", string(s), s.Heading())
		if i < len(analysis.Sections)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}
