package models

// TimeSeriesCreate declares a time series to create.
// @Description Request item for creating a time series.
// @name TimeSeriesCreate
type TimeSeriesCreate struct {
	ExternalID  string            `json:"external_id" binding:"required"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	IsStep      bool              `json:"is_step"`
	IsString    bool              `json:"is_string"`
	DataSetID   int64             `json:"data_set_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TimeSeries is a time series as stored by the platform.
type TimeSeries struct {
	ID          int64             `json:"id"`
	ExternalID  string            `json:"external_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	IsStep      bool              `json:"is_step"`
	IsString    bool              `json:"is_string"`
	DataSetID   int64             `json:"data_set_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DataPoint is one timestamped value. Exactly one of Value and StringValue is set.
type DataPoint struct {
	Timestamp   int64    `json:"timestamp"`
	Value       *float64 `json:"value,omitempty"`
	StringValue *string  `json:"string_value,omitempty"`
}

// DataPointInsert appends data points to the series with the given external id.
type DataPointInsert struct {
	ExternalID string      `json:"external_id"`
	DataPoints []DataPoint `json:"datapoints"`
}

// AggregateQuery retrieves aggregated data points over [Start, End).
// @Description Aggregate data point query for a single time series.
// @name AggregateQuery
type AggregateQuery struct {
	ExternalID string `json:"external_id"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	// Aggregate is the aggregate function, e.g. "average" or "stepInterpolation".
	Aggregate string `json:"aggregate"`
	// Granularity is in the platform's duration syntax, e.g. "5m".
	Granularity string `json:"granularity"`
	Limit       int    `json:"limit,omitempty"`
}

// DataPointList holds data points returned for one time series.
type DataPointList struct {
	ExternalID string      `json:"external_id"`
	IsStep     bool        `json:"is_step"`
	IsString   bool        `json:"is_string"`
	DataPoints []DataPoint `json:"datapoints"`
}

// LatestQuery retrieves the latest data point strictly before Before.
type LatestQuery struct {
	ExternalID string `json:"external_id"`
	Before     int64  `json:"before,omitempty"`
}
