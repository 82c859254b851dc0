package analysis

import (
	"context"
	"strings"

	"github.com/apex/log"

	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
)

// Extractor turns a raw model reply into sections. Local strategies run first;
// the resolver is asked only for sections that are still blank.
type Extractor struct {
	Strategies []domain.Strategy
	Resolver   domain.SectionResolver
}

func NewExtractor(resolver domain.SectionResolver) *Extractor {
	return &Extractor{Strategies: domain.LocalStrategies, Resolver: resolver}
}

// Extract never fails. Whatever cannot be recovered is left empty.
func (e *Extractor) Extract(ctx context.Context, raw string) (domain.StructuredAnalysis, map[domain.Section]domain.Source) {
	strategies := e.Strategies
	if strategies == nil {
		strategies = domain.LocalStrategies
	}

	a, src, err := domain.Run(raw, strategies...)
	if err != nil {
		log.WithError(err).Debug("local parse strategies exhausted")
	}

	prov := make(map[domain.Section]domain.Source, len(domain.Sections))
	for _, s := range domain.Sections {
		if strings.TrimSpace(a.Get(s)) != "" {
			prov[s] = src
		}
	}

	if e.Resolver == nil || strings.TrimSpace(raw) == "" {
		return a, prov
	}

	// one round trip per missing section, in presentation order
	for _, s := range a.Missing() {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("section fallback stopped")
			break
		}
		v, err := e.Resolver.ResolveSection(ctx, s, raw)
		if err != nil {
			log.WithError(err).WithField("section", string(s)).Warn("section fallback failed")
			continue
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		a.Set(s, v)
		prov[s] = domain.SourceFallback
	}
	return a, prov
}
