//go:build !(linux || darwin || freebsd || openbsd || netbsd)

package vector

import (
	"fmt"
	"os"
)

// mapFile reads the whole file into memory on platforms where the vector file is not memory-mapped.
func mapFile(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read vector file: %w", err)
	}
	return data, func() error { return nil }, nil
}
