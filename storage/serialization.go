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


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/reviewlens/core"
)

// Hand-written MUS serializers for the stored record types. The set of
// types is small and stable, so the serializers are maintained by hand
// instead of generated.

// VectorMUS serializes embedding vectors.
var VectorMUS = ord.NewSliceSer[float32](raw.Float32)

// ReviewMUS serializes core.Review.
var ReviewMUS = reviewSer{}

type reviewSer struct{}

func (reviewSer) Marshal(v core.Review, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Author, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += varint.Int.Marshal(v.Rating, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.CreatedAt, bs[n:])
	n += ord.String.Marshal(v.ReplyContent, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.RepliedAt, bs[n:])
	return
}

func (reviewSer) Unmarshal(bs []byte) (v core.Review, n int, err error) {
	var n1 int
	if v.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Author, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Content, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Rating, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.CreatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ReplyContent, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.RepliedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (reviewSer) Size(v core.Review) (size int) {
	size = ord.String.Size(v.ID)
	size += ord.String.Size(v.Author)
	size += ord.String.Size(v.Content)
	size += varint.Int.Size(v.Rating)
	size += raw.TimeUnixMicro.Size(v.CreatedAt)
	size += ord.String.Size(v.ReplyContent)
	size += raw.TimeUnixMicro.Size(v.RepliedAt)
	return
}

func (s reviewSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// DatasetMetaMUS serializes core.DatasetMeta.
var DatasetMetaMUS = datasetMetaSer{}

type datasetMetaSer struct{}

func (datasetMetaSer) Marshal(v core.DatasetMeta, bs []byte) (n int) {
	n = ord.String.Marshal(v.Namespace, bs)
	n += ord.String.Marshal(v.DisplayName, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.LastRefresh, bs[n:])
	n += varint.Int.Marshal(v.RecordCount, bs[n:])
	return
}

func (datasetMetaSer) Unmarshal(bs []byte) (v core.DatasetMeta, n int, err error) {
	var n1 int
	if v.Namespace, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.DisplayName, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.LastRefresh, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.RecordCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (datasetMetaSer) Size(v core.DatasetMeta) (size int) {
	size = ord.String.Size(v.Namespace)
	size += ord.String.Size(v.DisplayName)
	size += raw.TimeUnixMicro.Size(v.LastRefresh)
	size += varint.Int.Size(v.RecordCount)
	return
}

func (s datasetMetaSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// JobMUS serializes core.Job.
var JobMUS = jobSer{}

type jobSer struct{}

func (jobSer) Marshal(v core.Job, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Namespace, bs[n:])
	n += ord.String.Marshal(v.DisplayName, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.StartDate, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.EndDate, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.Phase, bs[n:])
	n += varint.Int.Marshal(v.Progress, bs[n:])
	n += ord.String.Marshal(v.Message, bs[n:])
	n += ord.String.Marshal(v.Results, bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.CreatedAt, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.UpdatedAt, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.CompletedAt, bs[n:])
	return
}

func (jobSer) Unmarshal(bs []byte) (v core.Job, n int, err error) {
	var (
		n1     int
		status string
	)
	if v.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Namespace, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.DisplayName, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.StartDate, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.EndDate, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if status, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Status = core.JobStatus(status)
	n += n1
	if v.Phase, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Progress, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Message, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Results, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Error, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.CreatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.UpdatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.CompletedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (jobSer) Size(v core.Job) (size int) {
	size = ord.String.Size(v.ID)
	size += ord.String.Size(v.Namespace)
	size += ord.String.Size(v.DisplayName)
	size += raw.TimeUnixMicro.Size(v.StartDate)
	size += raw.TimeUnixMicro.Size(v.EndDate)
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.Phase)
	size += varint.Int.Size(v.Progress)
	size += ord.String.Size(v.Message)
	size += ord.String.Size(v.Results)
	size += ord.String.Size(v.Error)
	size += raw.TimeUnixMicro.Size(v.CreatedAt)
	size += raw.TimeUnixMicro.Size(v.UpdatedAt)
	size += raw.TimeUnixMicro.Size(v.CompletedAt)
	return
}

func (s jobSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// ChatMessageMUS serializes core.ChatMessage.
var ChatMessageMUS = chatMessageSer{}

type chatMessageSer struct{}

func (chatMessageSer) Marshal(v core.ChatMessage, bs []byte) (n int) {
	n = ord.String.Marshal(v.JobID, bs)
	n += ord.String.Marshal(string(v.Role), bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.CreatedAt, bs[n:])
	return
}

func (chatMessageSer) Unmarshal(bs []byte) (v core.ChatMessage, n int, err error) {
	var (
		n1   int
		role string
	)
	if v.JobID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if role, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.Role = core.ChatRole(role)
	n += n1
	if v.Content, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.CreatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (chatMessageSer) Size(v core.ChatMessage) (size int) {
	size = ord.String.Size(v.JobID)
	size += ord.String.Size(string(v.Role))
	size += ord.String.Size(v.Content)
	size += raw.TimeUnixMicro.Size(v.CreatedAt)
	return
}

func (s chatMessageSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// MarshalReview serializes a Review to bytes.
func MarshalReview(review *core.Review) []byte {
	buf := make([]byte, ReviewMUS.Size(*review))
	ReviewMUS.Marshal(*review, buf)
	return buf
}

// UnmarshalReview deserializes a Review from bytes.
func UnmarshalReview(data []byte) (*core.Review, error) {
	review, _, err := ReviewMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &review, nil
}

// MarshalDatasetMeta serializes a DatasetMeta to bytes.
func MarshalDatasetMeta(meta *core.DatasetMeta) []byte {
	buf := make([]byte, DatasetMetaMUS.Size(*meta))
	DatasetMetaMUS.Marshal(*meta, buf)
	return buf
}

// UnmarshalDatasetMeta deserializes a DatasetMeta from bytes.
func UnmarshalDatasetMeta(data []byte) (*core.DatasetMeta, error) {
	meta, _, err := DatasetMetaMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &meta, nil
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *core.Job) []byte {
	buf := make([]byte, JobMUS.Size(*job))
	JobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	job, _, err := JobMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &job, nil
}

// MarshalChatMessage serializes a ChatMessage to bytes.
func MarshalChatMessage(msg *core.ChatMessage) []byte {
	buf := make([]byte, ChatMessageMUS.Size(*msg))
	ChatMessageMUS.Marshal(*msg, buf)
	return buf
}

// UnmarshalChatMessage deserializes a ChatMessage from bytes.
func UnmarshalChatMessage(data []byte) (*core.ChatMessage, error) {
	msg, _, err := ChatMessageMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &msg, nil
}

// MarshalVector serializes an embedding vector to bytes.
func MarshalVector(vector []float32) []byte {
	buf := make([]byte, VectorMUS.Size(vector))
	VectorMUS.Marshal(vector, buf)
	return buf
}

// UnmarshalVector deserializes an embedding vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	vector, _, err := VectorMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return vector, nil
}
