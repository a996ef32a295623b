package result

import (
	"archive/zip"
	"fmt"
)

// archiveItemCount reads the zip central directory and counts file entries,
// skipping directory markers.
func archiveItemCount(path string) (int, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("read result archive: %w", err)
	}
	defer reader.Close()

	count := 0
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		count++
	}
	return count, nil
}
