package types

type StatusKind string

const (
	StatusInfo    StatusKind = "info"
	StatusError   StatusKind = "error"
	StatusSuccess StatusKind = "success"
)

// Status is the single user-visible status line.
type Status struct {
	Message string     `json:"message"`
	Kind    StatusKind `json:"kind"`
}

// TransferView is what display surfaces render.
type TransferView struct {
	Status    Status               `json:"status"`
	Items     []SelectedItem       `json:"items"`
	Upload    *UploadSession       `json:"upload,omitempty"`
	Download  *DownloadPreparation `json:"download,omitempty"`
	ShareLink string               `json:"shareLink,omitempty"`
	Dragging  bool                 `json:"dragging"`
}

// Identity is who the user currently is.
type Identity struct {
	Token string
}

// Authenticated reports whether a login token is present.
func (i Identity) Authenticated() bool {
	return i.Token != ""
}
