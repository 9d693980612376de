// Package blob stores inbound image payloads and hands back a stable URL.
// The message record only ever keeps the URL string.
package blob

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"dm_core/internal/domain"
)

type Store interface {
	// Save accepts a data URL ("data:image/png;base64,....") or a raw
	// base64 payload and returns the public URL of the stored object.
	Save(ctx context.Context, payload string) (string, error)
}

// DiskStore writes images under a local directory served as static files.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Save(_ context.Context, payload string) (string, error) {
	data, ext, err := decodeImagePayload(payload)
	if err != nil {
		return "", err
	}

	name := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

var extByMime = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func decodeImagePayload(payload string) ([]byte, string, error) {
	ext := ".bin"
	raw := payload
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", domain.Validationf("malformed data URL")
		}
		raw = rest
		mime := strings.TrimPrefix(header, "data:")
		mime, _, _ = strings.Cut(mime, ";")
		if e, ok := extByMime[mime]; ok {
			ext = e
		}
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", domain.Validationf("image payload is not valid base64")
	}
	if len(data) == 0 {
		return nil, "", domain.Validationf("image payload is empty")
	}
	return data, ext, nil
}
