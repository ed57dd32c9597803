package store

import (
	"bytes"
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"receipthub/internal/constants"
)

// GridFSBlobStore keeps rendered receipt documents in a GridFS bucket
// next to the receipt metadata, so a single datastore covers both.
type GridFSBlobStore struct {
	bucket     *gridfs.Bucket
	bucketName string
}

func NewGridFSBlobStore(db *mongo.Database) (*GridFSBlobStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(constants.BlobBucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to create gridfs bucket: %w", err)
	}
	return &GridFSBlobStore{bucket: bucket, bucketName: constants.BlobBucketName}, nil
}

func (s *GridFSBlobStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.bucket.SetWriteDeadline(deadline)
	}

	if _, err := s.bucket.UploadFromStream(name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload document %s: %w", name, err)
	}

	return fmt.Sprintf("gridfs://%s/%s", s.bucketName, name), nil
}

func (s *GridFSBlobStore) Download(ctx context.Context, name string) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.bucket.SetReadDeadline(deadline)
	}

	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStreamByName(name, &buf); err != nil {
		return nil, fmt.Errorf("failed to download document %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
