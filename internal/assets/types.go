package assets

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a fetch job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// FetchJob is one request to acquire assets for one catalog entity.
// Immutable once created; one pipeline invocation per job.
type FetchJob struct {
	EntityID   string `json:"entity_id"`
	WebsiteURL string `json:"website_url"`
	Screenshot bool   `json:"screenshot"`
}

// Candidate is one provider URL to probe for an icon image.
type Candidate struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// FetchRequest captures everything needed to probe one candidate.
type FetchRequest struct {
	Source string
	URL    string
	Header http.Header
}

// FetchResponse is the validated result of a successful candidate probe.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// StoredAsset is the durable, publicly addressable object produced for an
// entity. The key is stable per entity; content is overwritten on re-runs.
type StoredAsset struct {
	Key         string    `json:"key"`
	URI         string    `json:"uri"`
	PublicURL   string    `json:"public_url"`
	ContentType string    `json:"content_type"`
	ContentHash string    `json:"content_hash"`
	Size        int       `json:"size"`
	StoredAt    time.Time `json:"stored_at"`
}

// JobResult is the terminal outcome of one fetch job, produced exactly once.
type JobResult struct {
	EntityID      string    `json:"entity_id"`
	Status        JobStatus `json:"status"`
	AssetURL      string    `json:"asset_url,omitempty"`
	ScreenshotURL string    `json:"screenshot_url,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	Source        string    `json:"source,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// Job represents the metadata persisted for each asynchronously submitted job.
type Job struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Request   FetchJob   `json:"request"`
	Result    *JobResult `json:"result,omitempty"`
}

// Entity is the narrow slice of a catalog record the pipeline touches.
type Entity struct {
	ID           string     `json:"id"`
	IconURL      string     `json:"icon_url,omitempty"`
	FetchError   string     `json:"fetch_error,omitempty"`
	FetchRetries int        `json:"fetch_retries"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Job       FetchJob
	Attempt   int
	Submitted int64
}

// IconKey returns the deterministic storage key for an entity's icon.
// Re-running a job for the same entity overwrites the same object.
func IconKey(entityID string) string {
	return entityID + ".png"
}

// ScreenshotKey returns the deterministic storage key for an entity's page
// screenshot.
func ScreenshotKey(entityID string) string {
	return entityID + "-page.png"
}
