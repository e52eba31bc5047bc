package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/metrics"
	"go.uber.org/zap"
)

const (
	// MaxValueSize is the largest serialized value Save accepts.
	MaxValueSize = 10 * 1024 * 1024

	// BehaviorCacheKey is the low-priority key evicted when the backend is full.
	BehaviorCacheKey = "user_behavior_cache"
)

// ResilientStorage implements domain.Storage over a Backend. It validates input,
// recovers from quota errors by evicting the behavior cache once, and deletes
// values that can no longer be decoded.
type ResilientStorage struct {
	backend Backend
	logger  *zap.Logger
}

func NewResilientStorage(backend Backend, logger *zap.Logger) *ResilientStorage {
	return &ResilientStorage{
		backend: backend,
		logger:  logger,
	}
}

func (s *ResilientStorage) Save(ctx context.Context, key string, value any) (err error) {
	defer s.recoverInto(&err, "save", key)

	if key == "" {
		return ErrInvalidKey
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal value: %v", domain.ErrValidation, err)
	}
	if len(data) > MaxValueSize {
		s.logger.Warn("storage value too large",
			zap.String("key", key),
			zap.Int("bytes", len(data)))
		return ErrValueTooLarge
	}

	err = s.backend.Set(ctx, key, data)
	if err == nil {
		metrics.StorageOperations.WithLabelValues("save", "success").Inc()
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		metrics.StorageOperations.WithLabelValues("save", "error").Inc()
		s.logger.Warn("storage save failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}

	s.logger.Warn("storage quota exceeded, evicting behavior cache",
		zap.String("key", key),
		zap.String("evicted", BehaviorCacheKey))
	metrics.StorageOperations.WithLabelValues("save", "quota_exceeded").Inc()

	if derr := s.backend.Delete(ctx, BehaviorCacheKey); derr != nil {
		s.logger.Warn("failed to evict behavior cache", zap.Error(derr))
	}

	if err := s.backend.Set(ctx, key, data); err != nil {
		s.logger.Error("storage save failed after eviction", zap.String("key", key), zap.Error(err))
		return err
	}
	metrics.StorageOperations.WithLabelValues("save", "success").Inc()
	return nil
}

func (s *ResilientStorage) Load(ctx context.Context, key string, dst any) (err error) {
	defer s.recoverInto(&err, "load", key)

	if key == "" {
		return ErrInvalidKey
	}

	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		s.logger.Warn("storage load failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("corrupted storage value, removing",
			zap.String("key", key),
			zap.Error(err))
		metrics.StorageOperations.WithLabelValues("load", "corrupted").Inc()
		if derr := s.backend.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to remove corrupted value", zap.String("key", key), zap.Error(derr))
		}
		return ErrCorrupted
	}
	return nil
}

func (s *ResilientStorage) Remove(ctx context.Context, key string) (err error) {
	defer s.recoverInto(&err, "remove", key)

	if key == "" {
		return ErrInvalidKey
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.Warn("storage remove failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}
	return nil
}

// Count returns the length of the array stored at key. Missing keys count as 0.
func (s *ResilientStorage) Count(ctx context.Context, key string) (int, error) {
	items, err := s.loadArray(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(items), nil
}

// CountMatching returns how many elements of the array at key match every
// filter entry. Missing keys count as 0.
func (s *ResilientStorage) CountMatching(ctx context.Context, key string, filter domain.Filter) (n int, err error) {
	defer s.recoverInto(&err, "count", key)

	items, err := s.loadArray(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(filter) == 0 {
		return len(items), nil
	}

	expected := normalizeFilter(filter)
	for _, raw := range items {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		if matches(fields, filter, expected) {
			n++
		}
	}
	return n, nil
}

// Query returns the elements of the array at key that match every filter entry.
// A nil filter returns the array unmodified.
func (s *ResilientStorage) Query(ctx context.Context, key string, filter domain.Filter) (out []json.RawMessage, err error) {
	defer s.recoverInto(&err, "query", key)

	items, err := s.loadArray(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []json.RawMessage{}, nil
		}
		return []json.RawMessage{}, err
	}
	if len(filter) == 0 {
		return items, nil
	}

	expected := normalizeFilter(filter)
	out = make([]json.RawMessage, 0, len(items))
	for _, raw := range items {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		if matches(fields, filter, expected) {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (s *ResilientStorage) loadArray(ctx context.Context, key string) ([]json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.Load(ctx, key, &raw); err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("storage value is not an array", zap.String("key", key))
		return []json.RawMessage{}, nil
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// normalizeFilter round-trips literal filter values through JSON so they
// compare equal to decoded element fields (numbers become float64, etc).
func normalizeFilter(filter domain.Filter) map[string]any {
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		if isPredicate(v) {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			out[k] = v
			continue
		}
		var norm any
		if err := json.Unmarshal(data, &norm); err != nil {
			out[k] = v
			continue
		}
		out[k] = norm
	}
	return out
}

func matches(fields map[string]any, filter domain.Filter, expected map[string]any) bool {
	for k, v := range filter {
		field := fields[k]
		switch p := v.(type) {
		case domain.Predicate:
			if !p(field) {
				return false
			}
		case func(any) bool:
			if !p(field) {
				return false
			}
		default:
			if !reflect.DeepEqual(field, expected[k]) {
				return false
			}
		}
	}
	return true
}

func isPredicate(v any) bool {
	switch v.(type) {
	case domain.Predicate, func(any) bool:
		return true
	}
	return false
}

func (s *ResilientStorage) recoverInto(err *error, op, key string) {
	if r := recover(); r != nil {
		s.logger.Error("storage backend panicked",
			zap.String("op", op),
			zap.String("key", key),
			zap.Any("panic", r))
		*err = fmt.Errorf("%w: %s panicked: %v", domain.ErrTransientIO, op, r)
	}
}
