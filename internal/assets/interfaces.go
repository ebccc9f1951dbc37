package assets

import (
	"context"
	"time"
)

// Fetcher probes a single candidate URL and returns a validated image
// response. Any transport error, non-2xx status, non-image content type or
// empty body is reported as an error, never a partial response.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Screenshotter captures a rendered page screenshot.
type Screenshotter interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// BlobStore persists asset bytes under a caller-chosen key with overwrite
// semantics and derives a stable public URL from a key.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error)
	PublicURL(key string) string
}

// CatalogStore is the narrow write surface of the catalog record.
type CatalogStore interface {
	UpdateIconURL(ctx context.Context, entityID string, iconURL string) error
	RecordFailure(ctx context.Context, entityID string, reason string) error
	GetEntity(ctx context.Context, entityID string) (Entity, error)
}

// JobStore persists asynchronously submitted job records.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, jobID string, status JobStatus, errText string, result *JobResult) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Publisher pushes terminal job outcomes to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for fetch jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for stored asset content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
