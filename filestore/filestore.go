// Package filestore holds the raw uploaded files between the API accepting an
// import and the worker processing it. The OSS backend is used when configured;
// otherwise uploads fall back to Redis with a TTL.
package filestore

import (
	"context"
	"io"
	"path"
	"strings"
)

type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// KeyForUpload builds the object key for one uploaded file. originalName is
// sanitized so a crafted filename cannot traverse the key space.
func KeyForUpload(prefix, jobID, originalName string) string {
	name := strings.TrimSpace(originalName)
	if name == "" {
		name = "upload"
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return path.Join(prefix, strings.TrimSpace(jobID), name)
}

func readAll(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(rc)
}
