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

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend *Backend
	chatSeq *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	chatSeq, err := backend.GetSequence(jobChatSeq)
	if err != nil {
		return nil, mapError(err)
	}

	return &JobRepository{
		backend: backend,
		chatSeq: chatSeq,
	}, nil
}

// Close releases the chat sequence.
func (r *JobRepository) Close() error {
	return r.chatSeq.Release()
}

// CreateJob persists a new job and indexes it by creation time.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		return storage.ErrInvalidQuery
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		job.CreatedAt = time.Now().UTC()
		job.UpdatedAt = job.CreatedAt

		if err := tx.Set(makeJobKey(job.ID), storage.MarshalJob(job)); err != nil {
			return err
		}
		dateKey := makeJobDateKey(job.CreatedAt, job.ID)
		if err := tx.Set(dateKey, []byte(job.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}

// UpdateJob persists the current state of an existing job.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.Job) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readJob(tx, makeJobKey(job.ID))
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		// CreatedAt is immutable; the date index key stays valid.
		job.CreatedAt = old.CreatedAt
		job.UpdatedAt = time.Now().UTC()

		if err := tx.Set(makeJobKey(job.ID), storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var job *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	if err != nil {
		return nil, mapError(err)
	}
	return job, nil
}

// ListJobs retrieves jobs ordered by creation time descending. A
// non-empty status filters the listing; offset skips past newer entries
// after filtering.
func (r *JobRepository) ListJobs(ctx context.Context, limit, offset int, status core.JobStatus) ([]*core.Job, error) {
	if limit < 0 || offset < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek to the last possible key in the job date index.
		startKey := makeJobDateKey(time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC), "")
		prefix := []byte(jobDatePrefix + ":")

		skipped := 0
		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if len(key) < len(prefix) || slices.Compare(key[:len(prefix)], prefix) != 0 {
				break
			}

			var jobID string
			if err := iter.Item().Value(func(val []byte) error {
				jobID = string(val)
				return nil
			}); err != nil {
				return err
			}

			job, err := readJob(tx, makeJobKey(jobID))
			if err != nil {
				return err
			}
			if job == nil {
				continue
			}
			if status != "" && job.Status != status {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}

			results = append(results, job)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, mapError(err)
	}
	return results, nil
}

// DeleteJob removes a job, its creation index entry, and its chat log.
func (r *JobRepository) DeleteJob(ctx context.Context, id string) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		job, err := readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}

		if err := tx.Delete(makeJobDateKey(job.CreatedAt, job.ID)); err != nil {
			return err
		}

		// Cascade the chat log.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChatPrefix(id)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		var chatKeys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			chatKeys = append(chatKeys, iter.Item().KeyCopy(nil))
		}
		iter.Close()
		for _, key := range chatKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}

		if err := tx.Delete(makeJobKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}

// AddChatMessage appends a message to a job's chat log.
func (r *JobRepository) AddChatMessage(ctx context.Context, msg *core.ChatMessage) error {
	if msg.JobID == "" {
		return storage.ErrInvalidQuery
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		seq, err := r.chatSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if seq == 0 {
			seq, err = r.chatSeq.Next()
			if err != nil {
				return err
			}
		}

		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}

		if err := tx.Set(makeChatKey(msg.JobID, seq), storage.MarshalChatMessage(msg)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapError(err)
}

// GetChatMessages retrieves a job's chat log in chronological order.
func (r *JobRepository) GetChatMessages(ctx context.Context, jobID string) ([]*core.ChatMessage, error) {
	if jobID == "" {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.ChatMessage
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChatPrefix(jobID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var msg *core.ChatMessage
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				msg, unmarshalErr = storage.UnmarshalChatMessage(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			results = append(results, msg)
		}
		return nil
	}, false)
	if err != nil {
		return nil, mapError(err)
	}
	return results, nil
}

// readJob reads a job record from the transaction.
func readJob(tx *badger.Txn, key []byte) (*core.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
