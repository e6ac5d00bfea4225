package transfer

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bigtransfer-go/types"
)

const (
	msgUploadLinkMissing = "Upload completed but link could not be generated."
	msgDownloadInvalid   = "Download was prepared but the server response was incomplete."
	msgUploadLost        = "Connection to the server was lost during the upload."
	msgDownloadLost      = "Connection to the server was lost while preparing the download."
	msgIdentity          = "Could not create an anonymous identity for this upload."
	msgUploadFailed      = "Upload failed. Please try again."
	msgDownloadFailed    = "Download failed. Please try again."
)

var errEmptySelection = errors.New("no files selected")

// userMessage maps a fatal flow error to the single status line shown to the user.
func userMessage(err error, upload bool) string {
	var (
		protoErr *types.ProtocolError
		connErr  *types.ConnectionError
		idErr    *types.IdentityError
		initErr  *types.InitiationError
	)
	switch {
	case errors.As(err, &protoErr):
		if upload {
			return msgUploadLinkMissing
		}
		return msgDownloadInvalid
	case errors.As(err, &connErr):
		if upload {
			return msgUploadLost
		}
		return msgDownloadLost
	case errors.As(err, &idErr):
		return msgIdentity
	case errors.As(err, &initErr):
		return initErr.Error()
	}
	if upload {
		return msgUploadFailed
	}
	return msgDownloadFailed
}

// maxServerMessage bounds plain-text error bodies used as a status line.
const maxServerMessage = 300

// serverMessage extracts the text of a server "error" event. JSON bodies carry it in
// "message" or "error"; anything else is taken as plain text.
func serverMessage(data []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := sonic.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
		return fallback
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback
	}
	if len(text) > maxServerMessage {
		text = text[:maxServerMessage]
	}
	return text
}
