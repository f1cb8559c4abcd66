package faceapi

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// EncodeImage returns the standard base64 form the backend expects.
func EncodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodeFile reads an image from disk and base64-encodes it.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("read image %s: %w", path, ErrInvalidImage)
	}
	return EncodeImage(data), nil
}

// NormalizeImage strips an optional data URL prefix and surrounding
// whitespace, and checks that what remains decodes as base64. Unpadded
// input is accepted and re-padded.
func NormalizeImage(payload string) (string, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.Contains(s[:comma], ";base64") {
			return "", fmt.Errorf("%w: malformed data url", ErrInvalidImage)
		}
		s = s[comma+1:]
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	if _, err := base64.StdEncoding.DecodeString(s); err == nil {
		return s, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
