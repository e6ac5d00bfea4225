package types

type UploadState string

const (
	UploadIdle       UploadState = "idle"
	UploadInitiating UploadState = "initiating"
	UploadStreaming  UploadState = "streaming"
	UploadCompleted  UploadState = "completed"
	UploadCancelled  UploadState = "cancelled"
	UploadFailed     UploadState = "failed"
)

// Active reports whether the state still owns the selection.
func (s UploadState) Active() bool {
	return s == UploadInitiating || s == UploadStreaming
}

// UploadSession is the single active upload.
type UploadSession struct {
	UploadID            string           `json:"uploadId,omitempty"`
	State               UploadState      `json:"state"`
	Items               []SelectedItem   `json:"items"`
	Progress            ProgressSnapshot `json:"progress"`
	ResultBatchAccessID string           `json:"resultBatchAccessId,omitempty"`
	ShareLink           string           `json:"shareLink,omitempty"`
	Message             string           `json:"message,omitempty"`
}

// InitiateUploadResponse is the body of POST /initiate-upload.
type InitiateUploadResponse struct {
	UploadID string `json:"upload_id"`
	Filename string `json:"filename,omitempty"`
	AccessID string `json:"access_id,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UploadCompleteEvent is the payload of the "complete" SSE event.
type UploadCompleteEvent struct {
	BatchAccessID  string `json:"batch_access_id"`
	Message        string `json:"message,omitempty"`
	BytesProcessed *int64 `json:"bytesProcessed,omitempty"`
	TotalBytes     *int64 `json:"totalBytes,omitempty"`
}
