package views

import (
	"html/template"
	"time"

	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
)

type FormValues struct {
	MedicalHistory string
	Symptoms       string
	Format         string
}

// ResultView is a Result shaped for the page.
type ResultView struct {
	ID        string
	Model     string
	CreatedAt string
	Text      bool
	Raw       string
	Preview   template.URL
	Sections  []domain.SectionView
}

type PageData struct {
	Title  string
	Error  string
	Form   FormValues
	Result *ResultView
}

func NewResultView(res *domain.Result) *ResultView {
	if res == nil {
		return nil
	}
	return &ResultView{
		ID:        res.ID,
		Model:     res.Model,
		CreatedAt: res.CreatedAt.UTC().Format(time.RFC1123),
		Text:      res.Format == domain.FormatText,
		Raw:       res.Raw,
		Preview:   template.URL(res.Preview),
		Sections:  res.Analysis.Views(),
	}
}
