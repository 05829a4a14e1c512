package dto

import "time"

// DocumentInfo describes a stored supporting document and how to fetch it.
type DocumentInfo struct {
	RequestID   string    `json:"request_id"`
	FileName    string    `json:"file_name"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
