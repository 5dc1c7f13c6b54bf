package raucwebsvc

import (
	"context"
	"io"
)

// Service is the update workflow exposed by the RAUC web service.
type Service interface {
	GetStatus(ctx context.Context) (Status, error)
	UploadBundle(ctx context.Context, b Bundle) (string, error)
	GetBundleInfo(ctx context.Context) (BundleInfo, error)
	InstallBundle(ctx context.Context) (ChunkStream, error)
	Reboot(ctx context.Context) (string, error)
}

// Bundle is an update bundle to be sent as the "file" form field.
type Bundle struct {
	Name    string
	Content io.Reader
}

// ChunkStream yields install output one chunk at a time. Next returns io.EOF
// once the server has finished writing.
type ChunkStream interface {
	Next() (string, error)
	Close() error
}
