package analysis

import "strings"

// SectionView is one heading/body pair ready for display.
type SectionView struct {
	Key     Section `json:"key"`
	Heading string  `json:"heading"`
	Body    string  `json:"body"`
	Empty   bool    `json:"empty"`
}

// Views returns every section in presentation order. Bodies are not modified;
// Empty marks the ones a presenter should replace with a placeholder.
func (a StructuredAnalysis) Views() []SectionView {
	out := make([]SectionView, 0, len(Sections))
	for _, s := range Sections {
		body := a.Get(s)
		out = append(out, SectionView{
			Key:     s,
			Heading: s.Heading(),
			Body:    body,
			Empty:   strings.TrimSpace(body) == "",
		})
	}
	return out
}
