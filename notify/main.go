package notify

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

// NotifyWriteChunkSize is the chunk size when writing payload to Unix socket (avoid large single write).
const NotifyWriteChunkSize = 32 * 1024 // 32KB

// MaxNotifyFiles is the maximum number of file names carried in a notification.
const MaxNotifyFiles = 20

const MaxNotifyLinkLen = 512

var (
	// DefaultUnixSocketPath is the default Unix socket path for IPC
	DefaultUnixSocketPath = "/tmp/bigtransfer-notify.sock"
	// UnixSocketTimeout is the timeout for Unix socket operations
	UnixSocketTimeout = 3 * time.Second
	UseNotify         = false
)

// SetUseNotify sets whether to use notify
func SetUseNotify(use bool) {
	UseNotify = use
}

// SetSocketPath overrides the default socket path. Empty keeps the current one.
func SetSocketPath(path string) {
	if path != "" {
		DefaultUnixSocketPath = path
	}
}

// SendNotification sends notification via Unix Domain Socket
func SendNotification(notification *types.Notification, socketPath string) error {
	if !UseNotify {
		return nil
	}
	if socketPath == "" {
		socketPath = DefaultUnixSocketPath
	}
	notification = truncate(notification)

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s (is the notification listener running?)", socketPath)
	}

	var payload []byte
	var err error
	if notification != nil {
		payload, err = sonic.Marshal(notification)
		if err != nil {
			return fmt.Errorf("failed to serialize notification data: %v", err)
		}
	} else {
		payload = []byte("{}")
	}
	if len(payload) > NotifyWriteChunkSize {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), NotifyWriteChunkSize)
	}

	conn, err := net.DialTimeout("unix", socketPath, UnixSocketTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to Unix socket %s: %v", socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close Unix socket connection: %v", err)
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(UnixSocketTimeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set write deadline: %v", err)
	}

	// 4 byte little-endian length prefix, then the payload
	lengthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBuf, uint32(len(payload)))
	if _, err := conn.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write length to Unix socket: %v", err)
	}
	tool.DefaultLogger.Debugf("Sending notification to Unix socket (len=%d): %s", len(payload), string(payload))
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload to Unix socket: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(UnixSocketTimeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read response from Unix socket: %v", err)
	}
	if n > 0 {
		var response map[string]any
		if err := sonic.Unmarshal(buf[:n], &response); err != nil {
			tool.DefaultLogger.Debugf("Unix socket response (raw): %s", string(buf[:n]))
		} else if errMsg, ok := response["error"].(string); ok && errMsg != "" {
			return fmt.Errorf("server returned error: %s", errMsg)
		}
	}

	if notification != nil {
		tool.DefaultLogger.Infof("[UnixSocket] Notification sent: %s - %s", notification.Type, notification.Title)
	}
	return nil
}

// truncate keeps file lists and links bounded so the payload fits one chunk. The
// notification is shared with other listeners, so Data is copied before it is changed.
func truncate(notification *types.Notification) *types.Notification {
	if notification == nil || notification.Data == nil {
		return notification
	}
	files, longList := notification.Data["files"].([]string)
	longList = longList && len(files) > MaxNotifyFiles
	link, longLink := notification.Data["shareLink"].(string)
	longLink = longLink && len(link) > MaxNotifyLinkLen
	if !longList && !longLink {
		return notification
	}

	out := *notification
	out.Data = make(map[string]any, len(notification.Data)+1)
	for k, v := range notification.Data {
		out.Data[k] = v
	}
	if longList {
		out.Data["files"] = files[:MaxNotifyFiles]
		out.Data["totalFiles"] = len(files)
	}
	if longLink {
		out.Data["shareLink"] = link[:MaxNotifyLinkLen]
	}
	return &out
}

// Forwarder returns a notification listener that relays flow transitions to the socket.
// Progress ticks are not forwarded.
func Forwarder(socketPath string) func(*types.Notification) {
	return func(n *types.Notification) {
		if n == nil || n.Type == types.NotifyTypeUploadProgress || n.Type == types.NotifyTypeDownloadProgress {
			return
		}
		if err := SendNotification(n, socketPath); err != nil {
			tool.DefaultLogger.Debugf("[Notify] Failed to send %s notification: %v", n.Type, err)
		}
	}
}
