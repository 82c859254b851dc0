package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/bryanwahyu/derma-lens/internal/application"
	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
	"github.com/bryanwahyu/derma-lens/internal/infra/ai/prompt"
)

// ImagePreparer validates and normalizes upload bytes.
type ImagePreparer interface {
	Prepare(data []byte) (ai.Image, error)
}

// Service runs one analysis end to end: stage, prepare, prompt, call, extract.
type Service struct {
	Vision    ai.VisionClient
	Extractor *Extractor
	Stager    domain.Stager
	Images    ImagePreparer
	Clock     application.Clock
	Model     string
	// Timeout bounds the whole analysis including fallback calls. Zero means none.
	Timeout time.Duration
}

// Analyze returns a provider or input error unchanged; parse problems never surface.
func (s *Service) Analyze(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Format == "" {
		req.Format = domain.FormatJSON
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	id := uuid.NewString()
	logger := log.WithFields(log.Fields{"analysis_id": id, "format": string(req.Format)})

	data, err := s.stageAndLoad(ctx, logger, req)
	if err != nil {
		return nil, err
	}

	img, err := s.Images.Prepare(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.Vision.DescribeImage(ctx, prompt.Diagnostic(req.MedicalHistory, req.Symptoms, req.Format), img)
	if err != nil {
		logger.WithError(err).Error("vision call failed")
		return nil, err
	}
	logger.WithFields(log.Fields{"duration": time.Since(start).String(), "chars": len(raw)}).Info("vision call done")

	res := &domain.Result{
		ID:        id,
		CreatedAt: s.now(),
		Format:    req.Format,
		Model:     s.Model,
		Raw:       raw,
		Preview:   "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
	}
	if req.Format == domain.FormatText {
		return res, nil
	}

	res.Analysis, res.Provenance = s.extractor().Extract(ctx, raw)
	if missing := res.Analysis.Missing(); len(missing) > 0 {
		logger.WithField("missing", len(missing)).Warn("analysis has empty sections")
	}
	return res, nil
}

// stageAndLoad writes the upload to the stager and reads it back. The staged
// copy is removed before returning.
func (s *Service) stageAndLoad(ctx context.Context, logger log.Interface, req domain.Request) ([]byte, error) {
	if s.Stager == nil {
		return req.Image, nil
	}
	key, err := s.Stager.Stage(ctx, req.Filename, req.ContentType, req.Image)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	defer func() {
		if err := s.Stager.Remove(context.WithoutCancel(ctx), key); err != nil {
			logger.WithError(err).WithField("key", key).Warn("failed to remove staged upload")
		}
	}()

	data, err := s.Stager.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load staged upload: %w", err)
	}
	return data, nil
}

func (s *Service) extractor() *Extractor {
	if s.Extractor == nil {
		return NewExtractor(nil)
	}
	return s.Extractor
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
