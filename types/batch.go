package types

// BatchFile is one member of a stored batch.
type BatchFile struct {
	Filename  string `json:"original_filename"`
	SizeBytes int64  `json:"original_size"`
}

// BatchDetails is the body of GET /batch-details/{access_id}.
type BatchDetails struct {
	AccessID       string      `json:"access_id"`
	BatchName      string      `json:"batch_display_name"`
	IsBatch        bool        `json:"is_batch"`
	TotalSizeBytes int64       `json:"total_original_size"`
	UploadedAt     string      `json:"upload_timestamp,omitempty"`
	Files          []BatchFile `json:"files"`
	Error          string      `json:"error,omitempty"`
}
