package index

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage reports the on-disk size of an index directory.
type Usage struct {
	VectorBytes   int64 `json:"vector_bytes"`
	MetadataBytes int64 `json:"metadata_bytes"`
	TotalBytes    int64 `json:"total_bytes"`
}

// DiskUsage sums file sizes under dir, following a published link to its current
// version. A missing directory reports zero.
func DiskUsage(dir string) (Usage, error) {
	var u Usage
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		dir = real
	}
	layout := Layout{Dir: dir}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		u.TotalBytes += info.Size()
		switch path {
		case layout.VectorPath():
			u.VectorBytes = info.Size()
		case layout.MetadataPath():
			u.MetadataBytes = info.Size()
		}
		return nil
	})
	return u, err
}
