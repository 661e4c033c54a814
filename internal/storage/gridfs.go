package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const avatarBucket = "avatars"

// GridFSStore keeps avatars in a MongoDB GridFS bucket so every node serves the same files.
type GridFSStore struct {
	bucket *mongo.GridFSBucket
}

func NewGridFSStore(db *mongo.Database) *GridFSStore {
	return &GridFSStore{bucket: db.GridFSBucket(options.GridFSBucket().SetName(avatarBucket))}
}

func (s *GridFSStore) Save(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	name, err := objectName(userID, contentType)
	if err != nil {
		return "", err
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"user_id": userID, "content_type": contentType})
	if _, err := s.bucket.UploadFromStream(ctx, name, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return name, nil
}

func (s *GridFSStore) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !validName(name) {
		return nil, "", ErrInvalidName
	}
	stream, err := s.bucket.OpenDownloadStreamByName(ctx, name)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open avatar: %w", err)
	}
	return stream, contentTypeOf(name), nil
}

func (s *GridFSStore) Delete(ctx context.Context, name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	cur, err := s.bucket.Find(ctx, bson.M{"filename": name})
	if err != nil {
		return fmt.Errorf("find avatar: %w", err)
	}
	defer cur.Close(ctx)

	var files []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &files); err != nil {
		return fmt.Errorf("find avatar: %w", err)
	}
	if len(files) == 0 {
		return ErrNotFound
	}
	for _, f := range files {
		if err := s.bucket.Delete(ctx, f.ID); err != nil {
			return fmt.Errorf("delete avatar: %w", err)
		}
	}
	return nil
}
