package storage

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// fileAPI is the subset of the genai Files service used by GeminiStore
type fileAPI interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
}

// GeminiStore uploads files through the Gemini Files API. Uploaded files
// stay PROCESSING until the service finishes ingesting them.
type GeminiStore struct {
	files fileAPI
}

// NewGeminiStore creates a store backed by the client's Files service
func NewGeminiStore(client *genai.Client) *GeminiStore {
	return &GeminiStore{files: client.Files}
}

// Upload sends the file with its detected content type
func (s *GeminiStore) Upload(ctx context.Context, src Source) (Provisional, error) {
	file, err := s.files.UploadFromPath(ctx, src.Path, &genai.UploadFileConfig{
		MIMEType:    DetectMIMEType(src.Path),
		DisplayName: src.Key,
	})
	if err != nil {
		return Provisional{}, err
	}
	return fromGeminiFile(file)
}

// Status fetches the file's current state
func (s *GeminiStore) Status(ctx context.Context, name string) (Provisional, error) {
	file, err := s.files.Get(ctx, name, nil)
	if err != nil {
		return Provisional{}, err
	}
	return fromGeminiFile(file)
}

func fromGeminiFile(file *genai.File) (Provisional, error) {
	if file == nil {
		return Provisional{}, fmt.Errorf("empty file response")
	}

	p := Provisional{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: file.MIMEType,
	}

	switch file.State {
	case genai.FileStateActive:
		p.State = StateActive
	case genai.FileStateFailed:
		p.State = StateFailed
	default:
		// unspecified is reported while the upload is still being registered
		p.State = StateProcessing
	}

	return p, nil
}
