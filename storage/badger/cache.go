package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/reviewlens/storage"
)

// CacheRepository implements storage.CacheRepository for BadgerDB.
// Response and embedding entries are content-addressed and written at
// most once, so reads never race with in-place mutation.
type CacheRepository struct {
	backend *Backend
}

var _ storage.CacheRepository = (*CacheRepository)(nil)

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(backend *Backend) *CacheRepository {
	return &CacheRepository{backend: backend}
}

// GetResponse retrieves a cached backend response by content hash.
func (r *CacheRepository) GetResponse(ctx context.Context, hash string) (string, error) {
	if hash == "" {
		return "", storage.ErrInvalidQuery
	}

	var response string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeResponseCacheKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			response = string(val)
			return nil
		})
	}, false)
	if err != nil {
		return "", mapError(err)
	}
	return response, nil
}

// PutResponse stores a backend response under its content hash.
func (r *CacheRepository) PutResponse(ctx context.Context, hash, response string) error {
	if hash == "" {
		return storage.ErrInvalidQuery
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeResponseCacheKey(hash), []byte(response)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}

// GetEmbedding retrieves a cached vector for (namespace, model, textHash).
func (r *CacheRepository) GetEmbedding(ctx context.Context, namespace, model, textHash string) ([]float32, error) {
	if model == "" || textHash == "" {
		return nil, storage.ErrInvalidQuery
	}

	var vector []float32
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeEmbeddingKey(namespace, model, textHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			vector, unmarshalErr = storage.UnmarshalVector(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, mapError(err)
	}
	return vector, nil
}

// PutEmbedding stores a vector under (namespace, model, textHash).
func (r *CacheRepository) PutEmbedding(ctx context.Context, namespace, model, textHash string, vector []float32) error {
	if model == "" || textHash == "" {
		return storage.ErrInvalidQuery
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeEmbeddingKey(namespace, model, textHash), storage.MarshalVector(vector)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}
