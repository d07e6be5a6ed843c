package repository

import (
	"context"
	"errors"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/pkg/storage"
	"StockPipe/pkg/util"
)

const (
	processedRoot = "processed"
	featuresFile  = "features.parquet"
)

// FeatureStore writes the daily feature dataset to
// processed/dt={date}/features.parquet.
type FeatureStore struct {
	backend storage.Backend
}

func NewFeatureStore(backend storage.Backend) *FeatureStore {
	return &FeatureStore{backend: backend}
}

func featuresKey(date time.Time) string {
	return storage.Join(processedRoot, "dt="+util.FormatDate(date), featuresFile)
}

// WriteFeatures replaces the dataset of date and returns its key.
func (s *FeatureStore) WriteFeatures(ctx context.Context, date time.Time, rows []models.FeatureRow) (string, error) {
	key := featuresKey(date)
	b, err := EncodeFeatures(rows)
	if err != nil {
		return "", models.NewStorageError("features.write", "encode dataset").WithError(err)
	}
	if err := s.backend.Write(ctx, key, b); err != nil {
		return "", models.NewStorageError("features.write", "write "+key).WithError(err)
	}
	return key, nil
}

// ReadFeatures loads the dataset of date; a missing dataset yields no rows.
func (s *FeatureStore) ReadFeatures(ctx context.Context, date time.Time) ([]models.FeatureRow, error) {
	b, err := s.backend.Read(ctx, featuresKey(date))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, models.NewStorageError("features.read", "read dataset").WithError(err)
	}
	rows, err := DecodeFeatures(b)
	if err != nil {
		return nil, models.NewStorageError("features.read", "decode dataset").WithError(err)
	}
	return rows, nil
}
