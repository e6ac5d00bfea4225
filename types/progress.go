package types

const EtaUnknown = "--:--"

// ProgressSnapshot is the normalized, display-ready progress of one flow.
type ProgressSnapshot struct {
	Percentage     float64 `json:"percentage"`
	BytesProcessed int64   `json:"bytesProcessed"`
	TotalBytes     int64   `json:"totalBytes"`
	SpeedMBps      float64 `json:"speedMBps"`
	EtaFormatted   string  `json:"etaFormatted"`
}
