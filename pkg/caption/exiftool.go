package caption

import (
	"context"
	"fmt"

	"github.com/barasher/go-exiftool"
)

// ExifToolWriter writes metadata through a long-running exiftool process
type ExifToolWriter struct {
	et *exiftool.Exiftool
}

// NewExifToolWriter starts exiftool. An empty bin means "exiftool" on PATH.
func NewExifToolWriter(bin string) (*ExifToolWriter, error) {
	var opts []func(*exiftool.Exiftool) error
	if bin != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(bin))
	}
	opts = append(opts, exiftool.Charset("filename=utf8"))

	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	return &ExifToolWriter{et: et}, nil
}

// WriteFields sets fields on the file at path, overwriting it in place
func (w *ExifToolWriter) WriteFields(ctx context.Context, path string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	md := []exiftool.FileMetadata{{File: path, Fields: make(map[string]interface{}, len(fields))}}
	for k, v := range fields {
		md[0].SetString(k, v)
	}

	w.et.WriteMetadata(md)
	if md[0].Err != nil {
		return fmt.Errorf("exiftool %s: %w", path, md[0].Err)
	}
	return nil
}

// Close stops the exiftool process
func (w *ExifToolWriter) Close() error {
	return w.et.Close()
}
