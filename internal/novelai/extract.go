package novelai

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// ErrNoImageInArchive is returned when no archive entry has an image extension
var ErrNoImageInArchive = errors.New("no image found in archive")

var imageEntry = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp)$`)

// ExtractImage returns the bytes of the first image entry of a zip archive
func ExtractImage(archive []byte) (name string, data []byte, err error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", nil, fmt.Errorf("open archive: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !imageEntry.MatchString(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return "", nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return f.Name, data, nil
	}
	return "", nil, ErrNoImageInArchive
}
