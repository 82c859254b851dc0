package analysis

import (
	"context"
	"strings"

	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
	"github.com/bryanwahyu/derma-lens/internal/infra/ai/prompt"
)

// ModelResolver asks a text-only model to copy one section out of the raw reply.
type ModelResolver struct {
	Client ai.TextClient
}

func (r ModelResolver) ResolveSection(ctx context.Context, section domain.Section, raw string) (string, error) {
	out, err := r.Client.Complete(ctx, prompt.SectionExtraction(section, raw))
	if err != nil {
		return "", err
	}
	return cleanSectionReply(section, out), nil
}

// cleanSectionReply drops fences, the not-found marker and an echoed heading.
func cleanSectionReply(section domain.Section, out string) string {
	s := domain.Normalize(out)
	if strings.EqualFold(strings.Trim(s, " .\"'`*"), prompt.NotFound) {
		return ""
	}

	first, rest, _ := strings.Cut(s, "\n")
	if head, body, ok := strings.Cut(first, ":"); ok {
		if got, known := domain.LookupSection(head); known && got == section {
			s = strings.TrimSpace(body + "\n" + rest)
		}
	}
	return strings.TrimSpace(s)
}
