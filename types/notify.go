package types

const (
	NotifyTypeUploadStart      = "upload_start"
	NotifyTypeUploadProgress   = "upload_progress"
	NotifyTypeUploadEnd        = "upload_end"
	NotifyTypeUploadFailed     = "upload_failed"
	NotifyTypeDownloadStart    = "download_start"
	NotifyTypeDownloadProgress = "download_progress"
	NotifyTypeDownloadReady    = "download_ready"
	NotifyTypeDownloadFailed   = "download_failed"
	NotifyTypeStatus           = "status"
)

// Notification represents a notification message structure
type Notification struct {
	Type    string         `json:"type,omitempty"`    // Notification type, e.g. "upload_start", "upload_end", etc.
	Title   string         `json:"title,omitempty"`   // Notification title
	Message string         `json:"message,omitempty"` // Notification message/content
	Data    map[string]any `json:"data,omitempty"`    // Additional data fields
}

// NotifyHub receives notifications for fan-out to connected display clients.
type NotifyHub interface {
	Broadcast(notification *Notification)
}
