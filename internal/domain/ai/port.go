package ai

import "context"

// Image is an encoded picture ready to be inlined into a model request.
type Image struct {
	Data     []byte
	MIMEType string
}

// VisionClient sends one prompt plus one image and returns the first reply text.
type VisionClient interface {
	DescribeImage(ctx context.Context, prompt string, img Image) (string, error)
}

// TextClient sends a text-only prompt and returns the first reply text.
type TextClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Model is implemented by clients that can report the model they call.
type Model interface {
	ModelName() string
}
