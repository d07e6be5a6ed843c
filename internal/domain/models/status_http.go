package models

// Requests and responses of the status API.

type RunErrorsRequest struct {
	Stage string `param:"stage" json:"stage" validate:"required,oneof=fetch features"`
	Date  string `param:"date" json:"date" validate:"required,datetime=2006-01-02"`
}

type UniverseRequest struct {
	Limit int `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=5000"`
}

// UniverseResponse is the newest persisted snapshot with its diff.
type UniverseResponse struct {
	Date    string         `json:"date"`
	Total   int            `json:"total_tickers"`
	Symbols []TickerSymbol `json:"symbols"`
	Diff    *UniverseDiff  `json:"diff,omitempty"`
}

// LatestRunsResponse carries the newest run of each stage.
type LatestRunsResponse struct {
	Acquisition *RunMetadata        `json:"acquisition,omitempty"`
	Features    *FeatureRunMetadata `json:"features,omitempty"`
}
