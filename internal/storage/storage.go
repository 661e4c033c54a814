// Package storage keeps uploaded avatar images.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("storage: avatar not found")
	ErrInvalidName        = errors.New("storage: invalid avatar name")
	ErrUnsupportedContent = errors.New("storage: unsupported image type")
)

type AvatarStore interface {
	// Save stores data under a fresh name derived from userID and returns that name.
	Save(ctx context.Context, userID, contentType string, data []byte) (string, error)
	// Open returns the stored bytes and their content type.
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, name string) error
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType sniffs data and returns its content type when it is one of the accepted avatar
// formats.
func DetectImageType(data []byte) (string, error) {
	ct := http.DetectContentType(data)
	if _, ok := extensions[ct]; !ok {
		return "", ErrUnsupportedContent
	}
	return ct, nil
}

func objectName(userID, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedContent
	}
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, userID)
	return id + "-" + uuid.NewString()[:8] + ext, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && path.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// NameFromURL returns the object name at the end of an avatar URL.
func NameFromURL(url string) string {
	if url == "" {
		return ""
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return path.Base(url)
}
