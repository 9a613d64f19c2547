package blob

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const filenameMetaKey = "filename"

// S3API is the subset of the s3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ Store = (*S3Store)(nil)

type S3Store struct {
	bucket string
	client S3API
}

// NewS3Store loads the default aws configuration for the region.
// An empty bucket is accepted here and reported by every call instead.
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket), nil
}

func NewS3StoreWithClient(client S3API, bucket string) *S3Store {
	return &S3Store{bucket: bucket, client: client}
}

func (s *S3Store) Put(ctx context.Context, obj *Object) (string, error) {
	if s.bucket == "" {
		return "", ErrMissingBucketConfig
	}

	id := uuid.New().String()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(obj.OwnerID, id)),
		Body:          bytes.NewReader(obj.Data),
		ContentType:   aws.String(obj.Mime),
		ContentLength: aws.Int64(int64(len(obj.Data))),
		Metadata:      map[string]string{filenameMetaKey: obj.Name},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

func (s *S3Store) Get(ctx context.Context, ownerID string, id string) (*Object, error) {
	if s.bucket == "" {
		return nil, ErrMissingBucketConfig
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(ownerID, id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}

	return &Object{
		OwnerID: ownerID,
		ID:      id,
		Name:    out.Metadata[filenameMetaKey],
		Mime:    aws.ToString(out.ContentType),
		Size:    int64(len(data)),
		Data:    data,
	}, nil
}

// Delete is idempotent, s3 does not report missing keys on delete.
func (s *S3Store) Delete(ctx context.Context, ownerID string, id string) error {
	if s.bucket == "" {
		return ErrMissingBucketConfig
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(ownerID, id)),
	})
	return err
}
