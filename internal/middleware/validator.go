package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// Upload validation helpers. Free-text fields are forwarded to the model
// unchanged and are not checked here.

var ErrUnsupportedUpload = errors.New("unsupported upload")

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// DetectImageType sniffs the content type from the first bytes of data.
func DetectImageType(data []byte) string {
	return http.DetectContentType(data)
}

// ValidateImageUpload checks that data looks like a supported image and that
// the filename, when present, carries a matching extension.
func ValidateImageUpload(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedUpload)
	}
	ct := DetectImageType(data)
	if !allowedImageTypes[ct] {
		return "", fmt.Errorf("%w: content type %s (allowed: jpeg, png, webp)", ErrUnsupportedUpload, ct)
	}
	if filename != "" {
		ext := strings.ToLower(filepath.Ext(filename))
		if ext != "" && !allowedExtensions[ext] {
			return "", fmt.Errorf("%w: extension %s", ErrUnsupportedUpload, ext)
		}
	}
	return ct, nil
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
