package blob

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore keeps blobs in a local badger database, used for development and tests.
type BadgerStore struct {
	db *badger.DB
}

type envelope struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Data []byte `json:"data"`
}

func NewBadgerStore(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Put(ctx context.Context, obj *Object) (string, error) {
	id := uuid.New().String()
	value, err := json.Marshal(envelope{Name: obj.Name, Mime: obj.Mime, Data: obj.Data})
	if err != nil {
		return "", err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(objectKey(obj.OwnerID, id)), value)
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

func (b *BadgerStore) Get(ctx context.Context, ownerID string, id string) (*Object, error) {
	var env envelope
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectKey(ownerID, id)))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &Object{
		OwnerID: ownerID,
		ID:      id,
		Name:    env.Name,
		Mime:    env.Mime,
		Size:    int64(len(env.Data)),
		Data:    env.Data,
	}, nil
}

func (b *BadgerStore) Delete(ctx context.Context, ownerID string, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(objectKey(ownerID, id)))
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
