// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
)

// appendChunkSize bounds the number of reviews written per transaction.
// BadgerDB caps transaction size; a full fetch can carry thousands of
// records.
const appendChunkSize = 100

// DatasetRepository implements storage.DatasetRepository for BadgerDB.
type DatasetRepository struct {
	backend *Backend
}

var _ storage.DatasetRepository = (*DatasetRepository)(nil)

// NewDatasetRepository creates a new DatasetRepository.
func NewDatasetRepository(backend *Backend) *DatasetRepository {
	return &DatasetRepository{backend: backend}
}

// GetDataset retrieves metadata for a cached dataset.
func (r *DatasetRepository) GetDataset(ctx context.Context, namespace string) (*core.DatasetMeta, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, storage.ErrInvalidQuery
	}

	var meta *core.DatasetMeta
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		meta, err = readDatasetMeta(tx, namespace)
		if err != nil {
			return err
		}
		if meta == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	if err != nil {
		return nil, mapError(err)
	}
	return meta, nil
}

// AppendReviews adds reviews to a dataset, skipping IDs already present.
// Writes are chunked across transactions; the metadata record is updated
// with each chunk so a partial failure never under-counts.
func (r *DatasetRepository) AppendReviews(ctx context.Context, namespace string, reviews []*core.Review) (int, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return 0, storage.ErrInvalidQuery
	}

	inserted := 0
	for chunk := range slices.Chunk(reviews, appendChunkSize) {
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			added := 0
			for _, review := range chunk {
				key := makeReviewKey(namespace, review.ID)
				_, err := tx.Get(key)
				if err == nil {
					// Already cached, idempotent skip.
					continue
				}
				if err != badger.ErrKeyNotFound {
					return err
				}

				if err := tx.Set(key, storage.MarshalReview(review)); err != nil {
					return err
				}
				dateKey := makeReviewDateKey(namespace, review.CreatedAt, review.ID)
				if err := tx.Set(dateKey, []byte(review.ID)); err != nil {
					return err
				}
				added++
			}

			if added > 0 {
				meta, err := readDatasetMeta(tx, namespace)
				if err != nil {
					return err
				}
				if meta == nil {
					meta = &core.DatasetMeta{Namespace: namespace}
				}
				meta.RecordCount += added
				if err := tx.Set(makeDatasetMetaKey(namespace), storage.MarshalDatasetMeta(meta)); err != nil {
					return err
				}
			}

			if err := tx.Commit(); err != nil {
				return err
			}
			inserted += added
			return nil
		}, true)
		if err != nil {
			return inserted, mapError(err)
		}
	}
	return inserted, nil
}

// GetReviewsByDateRange retrieves reviews with start <= CreatedAt < end,
// ordered by CreatedAt ascending.
func (r *DatasetRepository) GetReviewsByDateRange(ctx context.Context, namespace string, start, end time.Time) ([]*core.Review, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Review
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		startKey := makePartialReviewDateKey(namespace, start)
		endKey := makePartialReviewDateKey(namespace, end)
		iter := tx.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if slices.Compare(key, endKey) >= 0 {
				break
			}

			// Read the review ID from the index
			var reviewID string
			if err := iter.Item().Value(func(val []byte) error {
				reviewID = string(val)
				return nil
			}); err != nil {
				return err
			}

			// Look up the full record
			review, err := readReview(tx, makeReviewKey(namespace, reviewID))
			if err != nil {
				return err
			}
			if review != nil {
				results = append(results, review)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, mapError(err)
	}
	return results, nil
}

// TouchRefresh records the time of the last successful remote fetch.
func (r *DatasetRepository) TouchRefresh(ctx context.Context, namespace string, at time.Time) error {
	return r.updateMeta(namespace, func(meta *core.DatasetMeta) {
		meta.LastRefresh = at.UTC()
	})
}

// SetDisplayName stores the human-readable dataset name.
func (r *DatasetRepository) SetDisplayName(ctx context.Context, namespace, name string) error {
	return r.updateMeta(namespace, func(meta *core.DatasetMeta) {
		meta.DisplayName = name
	})
}

// ClearDataset removes a dataset's metadata and all of its records.
func (r *DatasetRepository) ClearDataset(ctx context.Context, namespace string) error {
	if err := core.ValidateNamespace(namespace); err != nil {
		return storage.ErrInvalidQuery
	}

	// Collect keys under a read transaction first; deleting while
	// iterating invalidates the iterator.
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, prefix := range [][]byte{makeReviewPrefix(namespace), makeReviewDatePrefix(namespace)} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
			iter.Close()
		}
		return nil
	}, false)
	if err != nil {
		return mapError(err)
	}

	keys = append(keys, makeDatasetMetaKey(namespace))
	for chunk := range slices.Chunk(keys, appendChunkSize) {
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, key := range chunk {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

// updateMeta applies a mutation to a dataset's metadata record, creating
// it if the namespace is new.
func (r *DatasetRepository) updateMeta(namespace string, mutate func(*core.DatasetMeta)) error {
	if err := core.ValidateNamespace(namespace); err != nil {
		return storage.ErrInvalidQuery
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readDatasetMeta(tx, namespace)
		if err != nil {
			return err
		}
		if meta == nil {
			meta = &core.DatasetMeta{Namespace: namespace}
		}
		mutate(meta)
		if err := tx.Set(makeDatasetMetaKey(namespace), storage.MarshalDatasetMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}

// readDatasetMeta reads a dataset metadata record from the transaction.
// Returns nil without error when the namespace is unknown.
func readDatasetMeta(tx *badger.Txn, namespace string) (*core.DatasetMeta, error) {
	item, err := tx.Get(makeDatasetMetaKey(namespace))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var meta *core.DatasetMeta
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		meta, unmarshalErr = storage.UnmarshalDatasetMeta(val)
		return unmarshalErr
	})
	return meta, err
}

// readReview reads a review record from the transaction.
func readReview(tx *badger.Txn, key []byte) (*core.Review, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var review *core.Review
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		review, unmarshalErr = storage.UnmarshalReview(val)
		return unmarshalErr
	})
	return review, err
}
