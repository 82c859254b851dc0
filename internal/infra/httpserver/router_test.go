package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domai "github.com/bryanwahyu/derma-lens/internal/domain/ai"
	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
	"github.com/bryanwahyu/derma-lens/internal/infra/imaging"
	"github.com/bryanwahyu/derma-lens/internal/middleware"
)

type stubAnalyzer struct {
	err  error
	last domain.Request
}

func (s *stubAnalyzer) Analyze(_ context.Context, req domain.Request) (*domain.Result, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	res := &domain.Result{
		ID:        "res-1",
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Format:    req.Format,
		Model:     "gpt-4o-mini",
		Raw:       "Visual Findings: red patch",
		Preview:   "data:image/png;base64,aW1n",
	}
	if req.Format != domain.FormatText {
		res.Analysis = domain.StructuredAnalysis{VisualFindings: "red patch", TreatmentPlan: "emollients"}
		res.Provenance = map[domain.Section]domain.Source{
			domain.VisualFindings: domain.SourceStrict,
			domain.TreatmentPlan:  domain.SourceFallback,
		}
	}
	return res, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

// multipartBody builds a form with an optional image part and text fields.
func multipartBody(t *testing.T, filename string, img []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newRouter(svc Analyzer, opts Options) http.Handler {
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	return NewRouter(svc, opts)
}

func post(t *testing.T, h http.Handler, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIndex_RendersForm(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/analyze"`)
	assert.Contains(t, w.Body.String(), "Analyze Image")
}

func TestAnalyzeForm_RendersSections(t *testing.T) {
	svc := &stubAnalyzer{}
	h := newRouter(svc, Options{})

	body, ct := multipartBody(t, "lesion.png", pngBytes(t), map[string]string{
		"medical_history": "eczema as a child",
		"symptoms":        "itching",
	})
	w := post(t, h, "/analyze", body, ct)

	assert.Equal(t, http.StatusOK, w.Code)
	page := w.Body.String()
	assert.Contains(t, page, "Visual Findings")
	assert.Contains(t, page, "red patch")
	assert.Contains(t, page, "Contextual Insights from Medical History")
	assert.Contains(t, page, "No information provided.")
	assert.Contains(t, page, "eczema as a child")

	assert.Equal(t, "eczema as a child", svc.last.MedicalHistory)
	assert.Equal(t, "itching", svc.last.Symptoms)
	assert.Equal(t, "image/png", svc.last.ContentType)
	assert.Equal(t, domain.FormatJSON, svc.last.Format)
}

func TestAnalyzeForm_TextFormat(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{})

	body, ct := multipartBody(t, "lesion.png", pngBytes(t), map[string]string{"format": "text"})
	w := post(t, h, "/analyze", body, ct)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Visual Findings: red patch")
	assert.NotContains(t, w.Body.String(), "No information provided.")
}

func TestAnalyzeForm_ErrorBanner(t *testing.T) {
	tests := []struct {
		name string
		err  error
		img  []byte
		code int
	}{
		{"missing image", nil, nil, http.StatusBadRequest},
		{"not an image", nil, []byte("just some text"), http.StatusBadRequest},
		{"provider failure", domai.NewProviderError("openai", "vision completion", 500, errors.New("boom")), nil, http.StatusBadGateway},
		{"quota", domai.NewProviderError("gemini", "generate", 429, errors.New("slow down")), nil, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := tt.img
			if tt.err != nil {
				img = pngBytes(t)
			}
			h := newRouter(&stubAnalyzer{err: tt.err}, Options{})

			body, ct := multipartBody(t, "lesion.png", img, nil)
			w := post(t, h, "/analyze", body, ct)

			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), "Critical error: ")
			assert.NotContains(t, w.Body.String(), "Analysis Result")
		})
	}
}

func TestAPIAnalyze_JSON(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{})

	body, ct := multipartBody(t, "lesion.png", pngBytes(t), map[string]string{"format": "json"})
	w := post(t, h, "/api/v1/analyze", body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID         string            `json:"id"`
		Format     string            `json:"format"`
		Analysis   map[string]string `json:"analysis"`
		Provenance map[string]string `json:"provenance"`
		Sections   []struct {
			Key     string `json:"key"`
			Heading string `json:"heading"`
			Body    string `json:"body"`
			Empty   bool   `json:"empty"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "res-1", resp.ID)
	assert.Equal(t, "json", resp.Format)
	assert.Equal(t, "red patch", resp.Analysis["visual_findings"])
	assert.Equal(t, "section_fallback", resp.Provenance["treatment_plan"])
	require.Len(t, resp.Sections, len(domain.Sections))
	assert.Equal(t, "Visual Findings", resp.Sections[0].Heading)
	assert.True(t, resp.Sections[2].Empty)
	assert.NotContains(t, w.Body.String(), "aW1n")
}

func TestAPIAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		img    []byte
		fields map[string]string
		code   int
	}{
		{"missing image", nil, nil, nil, http.StatusBadRequest},
		{"unknown format", nil, []byte("png"), map[string]string{"format": "yaml"}, http.StatusBadRequest},
		{"undecodable image", imaging.ErrUnsupportedImage, []byte("png"), nil, http.StatusBadRequest},
		{"quota", domai.NewProviderError("openai", "vision completion", 429, errors.New("slow")), []byte("png"), nil, http.StatusTooManyRequests},
		{"provider", domai.NewProviderError("openai", "vision completion", 503, errors.New("down")), []byte("png"), nil, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, []byte("png"), nil, http.StatusGatewayTimeout},
		{"other", errors.New("disk full"), []byte("png"), nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := tt.img
			if img != nil {
				img = pngBytes(t)
			}
			h := newRouter(&stubAnalyzer{err: tt.err}, Options{})

			body, ct := multipartBody(t, "lesion.png", img, tt.fields)
			w := post(t, h, "/api/v1/analyze", body, ct)

			assert.Equal(t, tt.code, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestAPIAnalyze_RequiresKey(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{APIKeys: map[string]string{"mobile": "secret"}})

	body, ct := multipartBody(t, "lesion.png", pngBytes(t), nil)
	w := post(t, h, "/api/v1/analyze", body, ct)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	body, ct = multipartBody(t, "lesion.png", pngBytes(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIAnalyze_BodyTooLarge(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{MaxUploadBytes: 512})

	body, ct := multipartBody(t, "lesion.png", bytes.Repeat([]byte{0x89}, 4096), nil)
	w := post(t, h, "/api/v1/analyze", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAnalyzeForm_RateLimited(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{RateLimiter: middleware.NewRateLimiter(1, 0)})

	body, ct := multipartBody(t, "lesion.png", pngBytes(t), nil)
	assert.Equal(t, http.StatusOK, post(t, h, "/analyze", body, ct).Code)

	body, ct = multipartBody(t, "lesion.png", pngBytes(t), nil)
	w := post(t, h, "/analyze", body, ct)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

var tokenField = regexp.MustCompile(`name="gorilla.csrf.Token" value="([^"]+)"`)

func TestAnalyzeForm_CSRF(t *testing.T) {
	h := newRouter(&stubAnalyzer{}, Options{CSRFKey: []byte("0123456789abcdef0123456789abcdef")})

	// without a token the form is rejected with the banner
	body, ct := multipartBody(t, "lesion.png", pngBytes(t), nil)
	w := post(t, h, "/analyze", body, ct)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Critical error: ")

	// a token from the rendered form is accepted
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	m := tokenField.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	body, ct = multipartBody(t, "lesion.png", pngBytes(t), map[string]string{"gorilla.csrf.Token": m[1]})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "red patch")
}

func TestHealthRoutes(t *testing.T) {
	failing := middleware.HealthCheckFunc(func(context.Context) error { return errors.New("staging dir missing") })
	h := newRouter(&stubAnalyzer{}, Options{HealthCheckers: map[string]middleware.HealthChecker{"staging": failing}})

	for path, code := range map[string]int{
		"/health":        http.StatusServiceUnavailable,
		"/healthz/live":  http.StatusOK,
		"/healthz/ready": http.StatusServiceUnavailable,
		"/metrics":       http.StatusOK,
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, w.Code, path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrImageRequired, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", middleware.ErrUnsupportedUpload), http.StatusBadRequest},
		{&requestError{errors.New("bad form")}, http.StatusBadRequest},
		{fmt.Errorf("upload: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge},
		{domai.NewProviderError("openai", "x", 429, errors.New("q")), http.StatusTooManyRequests},
		{domai.NewProviderError("openai", "x", 0, domai.ErrEmptyResponse), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
