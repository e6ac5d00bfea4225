package tool

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildInitiateUploadURL builds the POST /initiate-upload URL.
func BuildInitiateUploadURL(origin string) string {
	return strings.TrimRight(origin, "/") + "/initiate-upload"
}

// BuildUploadStreamURL builds the upload progress SSE URL.
func BuildUploadStreamURL(origin, uploadId string) string {
	return fmt.Sprintf("%s/stream-progress/%s", strings.TrimRight(origin, "/"), url.PathEscape(uploadId))
}

// BuildInitiateDownloadAllURL builds the batch download initiation URL.
func BuildInitiateDownloadAllURL(origin, accessId string) string {
	return fmt.Sprintf("%s/initiate-download-all/%s", strings.TrimRight(origin, "/"), url.PathEscape(accessId))
}

// BuildDownloadSingleURL builds the SSE URL preparing one member of a batch.
func BuildDownloadSingleURL(origin, accessId, filename string) string {
	return fmt.Sprintf("%s/download-single/%s/%s", strings.TrimRight(origin, "/"), url.PathEscape(accessId), url.PathEscape(filename))
}

// BuildStreamDownloadURL builds the SSE URL preparing a standalone record.
func BuildStreamDownloadURL(origin, accessId string) string {
	return fmt.Sprintf("%s/stream-download/%s", strings.TrimRight(origin, "/"), url.PathEscape(accessId))
}

// BuildServeTempFileURL builds the URL that serves the prepared bytes.
func BuildServeTempFileURL(origin, tempFileId, finalFilename string) string {
	return fmt.Sprintf("%s/serve-temp-file/%s/%s", strings.TrimRight(origin, "/"), url.PathEscape(tempFileId), url.PathEscape(finalFilename))
}

// BuildBatchDetailsURL builds the batch metadata URL.
func BuildBatchDetailsURL(origin, accessId string) string {
	return fmt.Sprintf("%s/batch-details/%s", strings.TrimRight(origin, "/"), url.PathEscape(accessId))
}

// BuildShareLink builds the browse link handed to the user after an upload.
func BuildShareLink(origin, batchAccessId string) string {
	return strings.TrimRight(origin, "/") + "/browse/" + batchAccessId
}

// ResolveStreamURL resolves a server-provided stream URL, which may be relative, against origin.
// Absolute URLs must stay on the origin's scheme and host, since the stream carries credentials.
func ResolveStreamURL(origin, streamURL string) (string, error) {
	base, err := url.Parse(strings.TrimRight(origin, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %v", origin, err)
	}
	ref, err := url.Parse(streamURL)
	if err != nil {
		return "", fmt.Errorf("invalid stream url %q: %v", streamURL, err)
	}
	resolved := base.ResolveReference(ref)
	if !strings.EqualFold(resolved.Scheme, base.Scheme) || !strings.EqualFold(resolved.Host, base.Host) {
		return "", fmt.Errorf("stream url %q is not on origin %s", streamURL, base.Host)
	}
	return resolved.String(), nil
}
