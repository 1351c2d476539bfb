package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"
)

// File is a named download.
type File struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

// FileName builds "<prefix>-<millis>.jpg", or "<prefix>-<n>-<millis>.jpg"
// when n > 0. millis is t in milliseconds since the Unix epoch.
func FileName(prefix string, n int, t time.Time) string {
	if n > 0 {
		return fmt.Sprintf("%s-%d-%d.jpg", prefix, n, t.UnixMilli())
	}
	return fmt.Sprintf("%s-%d.jpg", prefix, t.UnixMilli())
}

// WriteZip packs files into a zip archive written to w, in order.
func WriteZip(ctx context.Context, w io.Writer, files []File) error {
	zw := zip.NewWriter(w)

	for _, f := range files {
		select {
		case <-ctx.Done():
			_ = zw.Close()
			return ctx.Err()
		default:
		}

		if err := addFile(zw, f); err != nil {
			_ = zw.Close()
			return fmt.Errorf("add %s to zip: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, f File) error {
	header := &zip.FileHeader{
		Name:     f.Name,
		Method:   zip.Deflate,
		Modified: f.ModTime,
	}
	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = writer.Write(f.Data)
	return err
}
