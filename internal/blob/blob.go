package blob

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errors.New("blob not found")
	// ErrMissingBucketConfig is returned by every call of a store that has no bucket configured.
	ErrMissingBucketConfig = errors.New("blob bucket is not configured")
)

// Object is a stored binary with its metadata.
type Object struct {
	OwnerID string
	ID      string
	Name    string
	Mime    string
	Size    int64
	Data    []byte
}

// Store keeps write-once attachment binaries scoped by owner.
type Store interface {
	// Put stores the object under a new id and returns it.
	Put(ctx context.Context, obj *Object) (string, error)
	// Get retrieves an object.
	Get(ctx context.Context, ownerID string, id string) (*Object, error)
	// Delete removes an object, deleting a missing object is not an error.
	Delete(ctx context.Context, ownerID string, id string) error
}

const basePath = "attachments/"

func objectKey(ownerID, id string) string {
	return basePath + ownerID + "/" + id
}
