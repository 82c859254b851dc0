package prompt

import (
	"fmt"

	"github.com/bryanwahyu/derma-lens/internal/domain/analysis"
)

// SectionExtraction asks a text model to copy one section out of a previous reply.
func SectionExtraction(section analysis.Section, raw string) string {
	return fmt.Sprintf(`Below is a dermatology report. Find the section titled %q (it may also appear as the key %q).
Copy the text that follows that heading verbatim, up to the next heading. Do not summarize, rephrase or add anything.
If the report has no such section, reply with exactly %s.

Report:
"""
%s
"""`, section.Heading(), string(section), NotFound, raw)
}
