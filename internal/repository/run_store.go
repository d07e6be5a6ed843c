package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StockPipe/internal/domain/models"
	domrepo "StockPipe/internal/domain/repository"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/storage"
	"StockPipe/pkg/util"
)

const (
	logsRoot     = "logs"
	metadataFile = "metadata.json"
	errorsFile   = "errors.json"
)

// RunStore writes run artifacts as JSON under logs/{stage}/dt={date}/.
type RunStore struct {
	backend storage.Backend
}

func NewRunStore(backend storage.Backend) *RunStore {
	return &RunStore{backend: backend}
}

func runDir(stage, date string) string {
	return storage.Join(logsRoot, stage, "dt="+date)
}

// SaveRun writes metadata.json and errors.json for an acquisition run. A
// second run on the same day replaces the first run's artifacts.
func (s *RunStore) SaveRun(ctx context.Context, meta *models.RunMetadata, errs []models.ErrorRecord) error {
	return s.save(ctx, runDir(meta.Stage, meta.RunDate), meta, errs)
}

func (s *RunStore) SaveFeatureRun(ctx context.Context, meta *models.FeatureRunMetadata, errs []models.ErrorRecord) error {
	return s.save(ctx, runDir(models.StageFeatures, meta.RunDate), meta, errs)
}

func (s *RunStore) save(ctx context.Context, dir string, meta any, errs []models.ErrorRecord) error {
	if errs == nil {
		errs = []models.ErrorRecord{}
	}
	if err := s.writeJSON(ctx, storage.Join(dir, errorsFile), errs); err != nil {
		return err
	}
	return s.writeJSON(ctx, storage.Join(dir, metadataFile), meta)
}

func (s *RunStore) writeJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.NewStorageError("runs.save", "encode "+key).WithError(err)
	}
	if err := s.backend.Write(ctx, key, b); err != nil {
		return models.NewStorageError("runs.save", "write "+key).WithError(err)
	}
	return nil
}

// LatestRun returns the newest acquisition run metadata, or nil if none exists.
func (s *RunStore) LatestRun(ctx context.Context) (*models.RunMetadata, error) {
	var meta models.RunMetadata
	ok, err := s.latest(ctx, models.StageAcquisition, &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// LatestFeatureRun returns the newest feature run metadata, or nil if none exists.
func (s *RunStore) LatestFeatureRun(ctx context.Context) (*models.FeatureRunMetadata, error) {
	var meta models.FeatureRunMetadata
	ok, err := s.latest(ctx, models.StageFeatures, &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// Errors returns the error records of stage on date.
func (s *RunStore) Errors(ctx context.Context, stage string, date time.Time) ([]models.ErrorRecord, error) {
	var out []models.ErrorRecord
	b, err := s.backend.Read(ctx, storage.Join(runDir(stage, util.FormatDate(date)), errorsFile))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, models.NewStorageError("runs.errors", "read errors").WithError(err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, models.NewStorageError("runs.errors", "decode errors").WithError(err)
	}
	return out, nil
}

func (s *RunStore) latest(ctx context.Context, stage string, dest any) (bool, error) {
	keys, err := s.backend.List(ctx, storage.Join(logsRoot, stage)+"/")
	if err != nil {
		return false, models.NewStorageError("runs.latest", "list "+stage).WithError(err)
	}
	var newest time.Time
	var key string
	for _, k := range keys {
		seg := storage.Segments(k)
		if len(seg) != 4 || seg[3] != metadataFile {
			continue
		}
		d, ok := util.PartitionDate(seg[2])
		if ok && (key == "" || d.After(newest)) {
			newest, key = d, k
		}
	}
	if key == "" {
		return false, nil
	}
	b, err := s.backend.Read(ctx, key)
	if err != nil {
		return false, models.NewStorageError("runs.latest", "read "+key).WithError(err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, models.NewStorageError("runs.latest", "decode "+key).WithError(err)
	}
	return true, nil
}

// FanoutRecorder saves to a primary recorder and copies artifacts to mirrors.
// Only the primary's outcome is returned; mirror failures are logged.
type FanoutRecorder struct {
	primary domrepo.RunRecorder
	mirrors []domrepo.RunMirror
	l       *applogger.Logger
}

func NewFanoutRecorder(primary domrepo.RunRecorder, l *applogger.Logger, mirrors ...domrepo.RunMirror) *FanoutRecorder {
	if l == nil {
		l = applogger.Nop()
	}
	return &FanoutRecorder{primary: primary, mirrors: mirrors, l: l}
}

func (f *FanoutRecorder) SaveRun(ctx context.Context, meta *models.RunMetadata, errs []models.ErrorRecord) error {
	err := f.primary.SaveRun(ctx, meta, errs)
	for _, m := range f.mirrors {
		if merr := m.SaveRun(ctx, meta, errs); merr != nil {
			f.l.Warn("run mirror failed",
				applogger.String("run_id", meta.RunID),
				applogger.String("mirror", fmt.Sprintf("%T", m)),
				applogger.Error(merr),
			)
		}
	}
	return err
}

func (f *FanoutRecorder) SaveFeatureRun(ctx context.Context, meta *models.FeatureRunMetadata, errs []models.ErrorRecord) error {
	err := f.primary.SaveFeatureRun(ctx, meta, errs)
	for _, m := range f.mirrors {
		if merr := m.SaveFeatureRun(ctx, meta, errs); merr != nil {
			f.l.Warn("feature run mirror failed",
				applogger.String("run_id", meta.RunID),
				applogger.String("mirror", fmt.Sprintf("%T", m)),
				applogger.Error(merr),
			)
		}
	}
	return err
}

func (f *FanoutRecorder) LatestRun(ctx context.Context) (*models.RunMetadata, error) {
	return f.primary.LatestRun(ctx)
}
