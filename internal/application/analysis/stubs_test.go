package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
)

type stubResolver struct {
	mu      sync.Mutex
	calls   []domain.Section
	answers map[domain.Section]string
	errs    map[domain.Section]error
}

func (r *stubResolver) ResolveSection(_ context.Context, s domain.Section, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	if err := r.errs[s]; err != nil {
		return "", err
	}
	return r.answers[s], nil
}

// headingText answers like a text model copying whatever follows "Heading:".
type headingText struct {
	prompts []string
}

func (h *headingText) Complete(_ context.Context, p string) (string, error) {
	h.prompts = append(h.prompts, p)
	report := p[strings.Index(p, `"""`)+4 : strings.LastIndex(p, `"""`)-1]
	for _, line := range strings.Split(report, "\n") {
		head, body, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.Contains(p, `titled "`+strings.TrimSpace(head)+`"`) {
			return strings.TrimSpace(body), nil
		}
	}
	return "NOT_FOUND", nil
}

type stubVision struct {
	reply  string
	err    error
	prompt string
	img    ai.Image
}

func (v *stubVision) DescribeImage(_ context.Context, prompt string, img ai.Image) (string, error) {
	v.prompt = prompt
	v.img = img
	return v.reply, v.err
}

type stubImages struct{ err error }

func (s stubImages) Prepare(data []byte) (ai.Image, error) {
	if s.err != nil {
		return ai.Image{}, s.err
	}
	return ai.Image{Data: data, MIMEType: "image/png"}, nil
}

type memStager struct {
	objects map[string][]byte
	staged  int
	removed int
	failPut bool
}

func newMemStager() *memStager { return &memStager{objects: map[string][]byte{}} }

func (m *memStager) Stage(_ context.Context, name, _ string, data []byte) (string, error) {
	if m.failPut {
		return "", errors.New("disk full")
	}
	m.staged++
	key := name + "-staged"
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memStager) Load(_ context.Context, key string) ([]byte, error) {
	d, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (m *memStager) Remove(_ context.Context, key string) error {
	m.removed++
	delete(m.objects, key)
	return nil
}
