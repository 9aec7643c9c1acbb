package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmorgan81/textimage/internal/log"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader saves into Dir, replacing any previous file of the same name.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	path := filepath.Join(u.Dir, params.Name)
	log := log.FromContextOrDiscard(ctx).WithGroup("file")
	log.Info("writing", "file", path)

	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, params.Data, 0o644)
}
