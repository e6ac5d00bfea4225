package tool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// junkPatterns are OS metadata files never worth transferring. Matched lower-cased.
var junkPatterns = []string{
	".ds_store",
	"thumbs.db",
	"desktop.ini",
	"ehthumbs.db",
	".spotlight-v100",
	".trashes",
	".fseventsd",
	"._*",
}

var iconHints = map[string][]string{
	"image":    {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg", ".heic", ".tiff"},
	"video":    {".mp4", ".mov", ".avi", ".mkv", ".webm", ".wmv", ".m4v"},
	"audio":    {".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a"},
	"archive":  {".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz"},
	"pdf":      {".pdf"},
	"document": {".doc", ".docx", ".odt", ".rtf", ".txt", ".md", ".xls", ".xlsx", ".csv", ".ppt", ".pptx"},
	"code":     {".go", ".js", ".ts", ".py", ".java", ".c", ".cpp", ".h", ".html", ".css", ".json", ".xml", ".yaml", ".yml", ".sh"},
}

var iconByExt = func() map[string]string {
	m := make(map[string]string)
	for hint, exts := range iconHints {
		for _, ext := range exts {
			m[ext] = hint
		}
	}
	return m
}()

// BaseName returns the last element of a display name using either separator.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// IsJunkName reports whether the base name of name is a known OS junk file.
func IsJunkName(name string) bool {
	base := strings.ToLower(BaseName(name))
	for _, pattern := range junkPatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// IconHint derives a display icon category from the file extension.
func IconHint(name string) string {
	if hint, ok := iconByExt[strings.ToLower(filepath.Ext(BaseName(name)))]; ok {
		return hint
	}
	return "file"
}

// HasPathSeparator reports whether a display name is a relative path.
func HasPathSeparator(name string) bool {
	return strings.ContainsAny(name, "/\\")
}

// NextAvailablePath returns the first path under dir that does not exist, using fileName
// and if it exists, trying base-2.ext, base-3.ext, ... (e.g. txt.txt -> txt-2.txt, txt-3.txt).
func NextAvailablePath(dir, fileName string) string {
	fileName = BaseName(fileName)
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	if base == "" {
		base = fileName
		ext = ""
	}
	try := filepath.Join(dir, fileName)
	if _, err := os.Stat(try); os.IsNotExist(err) {
		return try
	}
	for n := 2; ; n++ {
		try = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try
		}
	}
}

// CopyWithContext copies from src to dst while respecting context cancellation.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 2*1024*1024) // 2MB buffer
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if writeErr == nil {
					writeErr = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
