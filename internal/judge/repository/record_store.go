// Package repository persists submission progress records so callers can
// poll a submission while it is being judged.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/common/cache"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/model"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

const recordKeyPrefix = "judge:submission:"

const defaultRecordTTL = 30 * time.Minute

// RecordStore keeps submission records in the cache. Records carry a TTL so
// abandoned submissions age out without a sweeper.
type RecordStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRecordStore creates a store. A non-positive ttl falls back to the
// default retention window.
func NewRecordStore(cacheClient cache.Cache, ttl time.Duration) *RecordStore {
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &RecordStore{cache: cacheClient, ttl: ttl}
}

// Save writes the record, refreshing its TTL.
func (s *RecordStore) Save(ctx context.Context, record model.Record) error {
	if record.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if s.cache == nil {
		return appErr.New(appErr.StoreError).WithMessage("record store is not initialized")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record failed: %w", err)
	}
	if err := s.cache.Set(ctx, recordKeyPrefix+record.SubmissionID, string(data), cache.JitterTTL(s.ttl)); err != nil {
		return appErr.Wrapf(err, appErr.StoreSetFailed, "store record failed")
	}
	return nil
}

// Get returns the record for a submission id.
func (s *RecordStore) Get(ctx context.Context, submissionID string) (model.Record, error) {
	if submissionID == "" {
		return model.Record{}, appErr.ValidationError("submission_id", "required")
	}
	if s.cache == nil {
		return model.Record{}, appErr.New(appErr.StoreError).WithMessage("record store is not initialized")
	}
	val, err := s.cache.Get(ctx, recordKeyPrefix+submissionID)
	if err != nil {
		return model.Record{}, appErr.Wrapf(err, appErr.StoreError, "load record failed")
	}
	if val == "" {
		return model.Record{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	}
	var record model.Record
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return model.Record{}, appErr.Wrapf(err, appErr.StoreError, "decode record failed")
	}
	return record, nil
}

// Delete removes the record. Cancelled submissions use this so no partial
// progress survives.
func (s *RecordStore) Delete(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if s.cache == nil {
		return appErr.New(appErr.StoreError).WithMessage("record store is not initialized")
	}
	if err := s.cache.Del(ctx, recordKeyPrefix+submissionID); err != nil {
		return appErr.Wrapf(err, appErr.StoreError, "delete record failed")
	}
	return nil
}
