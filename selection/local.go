package selection

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moyoez/bigtransfer-go/types"
)

// FileSource reads a selected item from the local filesystem.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// CollectPaths turns local paths into raw entries. Directories are walked and their files
// named by a slash-separated path relative to the directory's parent.
func CollectPaths(paths []string) ([]types.RawEntry, error) {
	var entries []types.RawEntry
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %v", p, err)
		}
		if !info.IsDir() {
			entries = append(entries, types.RawEntry{
				Source:      FileSource(p),
				DisplayName: filepath.Base(p),
				SizeBytes:   info.Size(),
			})
			continue
		}

		root := filepath.Dir(filepath.Clean(p))
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			entries = append(entries, types.RawEntry{
				Source:      FileSource(path),
				DisplayName: filepath.ToSlash(rel),
				SizeBytes:   fi.Size(),
				InFolder:    true,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk folder %s: %v", p, err)
		}
	}
	return entries, nil
}
