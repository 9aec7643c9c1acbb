package store

import (
	"context"
)

type Invalidator interface {
	Invalidate(context.Context, []string) error
}

// InvalidatingUploader purges the CDN copy of every object it uploads.
// Downloads always reuse the same name, so a cached copy would be stale.
type InvalidatingUploader struct {
	Uploader    Uploader
	Invalidator Invalidator
}

func (u *InvalidatingUploader) Upload(ctx context.Context, params UploadParams) error {
	if err := u.Uploader.Upload(ctx, params); err != nil {
		return err
	}
	return u.Invalidator.Invalidate(ctx, []string{"/" + params.Name})
}
