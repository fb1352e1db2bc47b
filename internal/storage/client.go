package storage

import "context"

// RemoteState is the processing state reported by the asset store.
type RemoteState string

const (
	StateProcessing RemoteState = "PROCESSING"
	StateActive     RemoteState = "ACTIVE"
	StateFailed     RemoteState = "FAILED"
)

// Store defines the asset store operations the upload pipeline depends on
type Store interface {
	// Upload sends a local file and returns a provisional handle whose
	// backing asset may still be processing.
	Upload(ctx context.Context, src Source) (Provisional, error)
	// Status reports the current state of a previously uploaded asset.
	Status(ctx context.Context, name string) (Provisional, error)
}

// Source describes a local file to upload
type Source struct {
	Path string // absolute path on disk
	Key  string // slash-separated path relative to the scan root
	Size int64
}

// Provisional is the store's view of an uploaded asset
type Provisional struct {
	Name     string
	URI      string
	MIMEType string
	State    RemoteState
}

// Ready reports whether the asset can be referenced by downstream calls.
func (p Provisional) Ready() bool {
	return p.State == StateActive
}

// Config contains S3-compatible client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string
}
