package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"

	"github.com/apex/log"
	"github.com/gorilla/csrf"
)

//go:embed templates/*.gohtml
var FS embed.FS

// Template renders one HTML page with request-bound helpers.
type Template struct {
	htmlTpl *template.Template
}

func ParseFS(fsys fs.FS, patterns ...string) (Template, error) {
	tpl := template.New(path.Base(patterns[0]))
	// placeholders, replaced per request in Execute
	tpl.Funcs(template.FuncMap{
		"csrfField": func() template.HTML { return "" },
	})

	tpl, err := tpl.ParseFS(fsys, patterns...)
	if err != nil {
		return Template{}, fmt.Errorf("parsing template: %w", err)
	}
	return Template{htmlTpl: tpl}, nil
}

func Must(t Template, err error) Template {
	if err != nil {
		panic(err)
	}
	return t
}

// Execute writes the page with status 200.
func (t Template) Execute(w http.ResponseWriter, r *http.Request, data any) {
	t.ExecuteWithStatus(w, r, http.StatusOK, data)
}

// ExecuteWithStatus renders into a buffer first so a template error never
// leaves a half written page behind.
func (t Template) ExecuteWithStatus(w http.ResponseWriter, r *http.Request, status int, data any) {
	tpl, err := t.htmlTpl.Clone()
	if err != nil {
		log.WithError(err).Error("cloning template")
		http.Error(w, "There was an error rendering the page", http.StatusInternalServerError)
		return
	}
	tpl.Funcs(template.FuncMap{
		"csrfField": func() template.HTML { return csrf.TemplateField(r) },
	})

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		log.WithError(err).Error("executing template")
		http.Error(w, "There was an error rendering the page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.Copy(w, &buf)
}
