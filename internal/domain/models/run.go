package models

import (
	"time"

	"StockPipe/pkg/util"
)

type RunStatus string

const (
	StatusSuccess    RunStatus = "success"
	StatusPartial    RunStatus = "partial"
	StatusFailed     RunStatus = "failed"
	StatusTerminated RunStatus = "terminated"
	StatusSkipped    RunStatus = "skipped"
)

// Stage names used in run artifacts and metrics.
const (
	StageUniverse    = "universe"
	StageAcquisition = "fetch"
	StageFeatures    = "features"
)

// RunMetadata summarises one acquisition run. Persisted exactly once at run end.
type RunMetadata struct {
	RunID             string    `json:"run_id"`
	RunDate           string    `json:"run_date"`
	Stage             string    `json:"stage"`
	TickersProcessed  int       `json:"tickers_processed"`
	TickersSuccessful int       `json:"tickers_successful"`
	TickersFailed     int       `json:"tickers_failed"`
	TickersSkipped    int       `json:"tickers_skipped"`
	TickersUpToDate   int       `json:"tickers_up_to_date"`
	RateLimitHits     int64     `json:"rate_limit_hits"`
	TotalSleepTime    float64   `json:"total_sleep_time"` // seconds
	Status            RunStatus `json:"status"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	RuntimeSeconds    float64   `json:"runtime_seconds"`
	BatchSize         int       `json:"batch_size"`
	WorkersInitial    int       `json:"parallel_workers_initial"`
	WorkersFinal      int       `json:"parallel_workers_final"`
	PartitionsWritten int       `json:"partitions_written"`
	DryRun            bool      `json:"dry_run"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// NewRunMetadata starts a run record for date.
func NewRunMetadata(runID string, date time.Time, stage string) *RunMetadata {
	return &RunMetadata{
		RunID:     runID,
		RunDate:   util.FormatDate(date),
		Stage:     stage,
		Status:    StatusFailed,
		StartedAt: time.Now().UTC(),
	}
}

// Finalize stamps runtime and status.
func (m *RunMetadata) Finalize(status RunStatus, errMsg string) {
	m.FinishedAt = time.Now().UTC()
	m.RuntimeSeconds = m.FinishedAt.Sub(m.StartedAt).Seconds()
	m.Status = status
	if errMsg != "" {
		m.ErrorMessage = errMsg
	}
}

// ComputeStatus classifies a run from its failure ratio. Termination wins over
// every other outcome.
func ComputeStatus(processed, failed int, threshold float64, terminated bool) RunStatus {
	switch {
	case terminated:
		return StatusTerminated
	case processed == 0:
		return StatusFailed
	case failed == 0:
		return StatusSuccess
	case failed == processed:
		return StatusFailed
	case float64(failed)/float64(processed) > threshold:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// ErrorRecord is a per-ticker failure kept for the run's error artifact.
type ErrorRecord struct {
	Ticker    string    `json:"ticker"`
	ErrorKind ErrorKind `json:"error_kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorRecord classifies err; unclassified errors default to def.
func NewErrorRecord(ticker string, err error, def ErrorKind) ErrorRecord {
	return ErrorRecord{
		Ticker:    ticker,
		ErrorKind: KindOrDefault(err, def),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// FeatureRunMetadata summarises one feature stage run.
type FeatureRunMetadata struct {
	RunID            string    `json:"run_id"`
	RunDate          string    `json:"run_date"`
	TickersProcessed int       `json:"tickers_processed"`
	TickersOutput    int       `json:"tickers_output"`
	TickersDropped   int       `json:"tickers_dropped"`
	TickersFailed    int       `json:"tickers_failed"`
	RowsOutput       int       `json:"rows_output"`
	RowsDropped      int       `json:"rows_dropped"`
	OutputWindowDays int       `json:"output_window_days"`
	DropIncomplete   bool      `json:"drop_incomplete"`
	Status           RunStatus `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	RuntimeSeconds   float64   `json:"runtime_seconds"`
	OutputPath       string    `json:"output_path"`
}

// PruneResult lists the partitions a retention pass removed.
type PruneResult struct {
	Cutoff  string   `json:"cutoff_date"`
	Deleted []string `json:"deleted_partitions"`
	DryRun  bool     `json:"dry_run"`
}
