package types

type DownloadKind string

const (
	DownloadBatch  DownloadKind = "batch"  // whole batch, zipped server-side
	DownloadSingle DownloadKind = "single" // one member of a batch
	DownloadRecord DownloadKind = "record" // standalone file record
)

type DownloadState string

const (
	DownloadIdle      DownloadState = "idle"
	DownloadPreparing DownloadState = "preparing"
	DownloadReady     DownloadState = "ready"
	DownloadFailed    DownloadState = "failed"
)

// DownloadTarget names what to prepare.
type DownloadTarget struct {
	AccessID string       `json:"access_id" binding:"required"`
	Filename string       `json:"filename,omitempty"`
	Kind     DownloadKind `json:"kind,omitempty"`
}

// DownloadPreparation is the single active download-preparation flow.
type DownloadPreparation struct {
	Target        DownloadTarget   `json:"target"`
	State         DownloadState    `json:"state"`
	Progress      ProgressSnapshot `json:"progress"`
	TempFileID    string           `json:"tempFileId,omitempty"`
	FinalFilename string           `json:"finalFilename,omitempty"`
	SavedPath     string           `json:"savedPath,omitempty"`
	Message       string           `json:"message,omitempty"`
}

// InitiateDownloadResponse is the body of GET /initiate-download-all/{access_id}.
type InitiateDownloadResponse struct {
	SSEStreamURL string `json:"sse_stream_url"`
	Error        string `json:"error,omitempty"`
}

// DownloadReadyEvent is the payload of the "ready" SSE event.
type DownloadReadyEvent struct {
	TempFileID    string `json:"temp_file_id"`
	FinalFilename string `json:"final_filename"`
}

// ServerMessage carries "status" and "error" event payloads.
type ServerMessage struct {
	Message string `json:"message"`
}
