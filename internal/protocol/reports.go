package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/energy-kpi/internal/analytics"
	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/planner"
)

const (
	ReportTypeEntityKPIs        = "ENTITY_KPIS"
	ReportTypeBuildingAnalytics = "BUILDING_ANALYTICS"
)

const (
	ResultStatusOK    = "OK"
	ResultStatusError = "ERROR"
)

// ReportRequest asks the reporter to compute a report for one entity
type ReportRequest struct {
	RequestID       string    `json:"request_id"`
	Type            string    `json:"type"` // ENTITY_KPIS, BUILDING_ANALYTICS
	EntityKind      string    `json:"entity_kind"`
	EntityID        string    `json:"entity_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Interval        string    `json:"interval,omitempty"`
	Resolution      *int      `json:"resolution,omitempty"`
	MeasurementType string    `json:"measurement_type,omitempty"`
	StateType       string    `json:"state_type,omitempty"`
	RequestedAt     time.Time `json:"requested_at"`
}

// EnsureID assigns a request id when the producer did not set one
func (r *ReportRequest) EnsureID() string {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	return r.RequestID
}

// Options converts the request into KPI options
func (r *ReportRequest) Options() (kpi.Options, error) {
	return ParseOptions(r.Start, r.End, r.Interval, r.Resolution, r.MeasurementType, r.StateType)
}

// ParseOptions validates the wire form of KPI options
func ParseOptions(start, end time.Time, interval string, resolution *int, measurementType, stateType string) (kpi.Options, error) {
	iv, err := planner.ParseInterval(interval)
	if err != nil {
		return kpi.Options{}, apperr.Validation("%v", err)
	}

	opts := kpi.Options{
		Start:           start,
		End:             end,
		Interval:        iv,
		MeasurementType: measurementType,
		StateType:       measurement.StateType(stateType),
	}
	if resolution != nil {
		res, err := measurement.ParseResolution(*resolution)
		if err != nil {
			return kpi.Options{}, apperr.Validation("%v", err)
		}
		opts.Resolution = &res
	}
	return opts, opts.Validate()
}

// ReportResult is published once per processed request
type ReportResult struct {
	RequestID   string                       `json:"request_id"`
	Type        string                       `json:"type"`
	EntityKind  string                       `json:"entity_kind"`
	EntityID    string                       `json:"entity_id"`
	Status      string                       `json:"status"` // OK, ERROR
	ErrorKind   string                       `json:"error_kind,omitempty"`
	Error       string                       `json:"error,omitempty"`
	KPIs        *kpi.EntityKPI               `json:"kpis,omitempty"`
	Analytics   *analytics.BuildingAnalytics `json:"analytics,omitempty"`
	CompletedAt time.Time                    `json:"completed_at"`
}

// NewErrorResult builds an ERROR result for req
func NewErrorResult(req *ReportRequest, err error, now time.Time) *ReportResult {
	return &ReportResult{
		RequestID:   req.RequestID,
		Type:        req.Type,
		EntityKind:  req.EntityKind,
		EntityID:    req.EntityID,
		Status:      ResultStatusError,
		ErrorKind:   apperr.KindOf(err).String(),
		Error:       err.Error(),
		CompletedAt: now,
	}
}

// Key partitions results by entity
func (r *ReportResult) Key() string {
	return r.EntityKind + "-" + r.EntityID
}

// EncodeReportRequest encodes a ReportRequest to JSON
func EncodeReportRequest(req *ReportRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeReportRequest decodes JSON to ReportRequest
func DecodeReportRequest(data []byte) (*ReportRequest, error) {
	var req ReportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("malformed report request: %v", err)
	}
	return &req, nil
}

// EncodeReportResult encodes a ReportResult to JSON
func EncodeReportResult(res *ReportResult) ([]byte, error) {
	return json.Marshal(res)
}

// DecodeReportResult decodes JSON to ReportResult
func DecodeReportResult(data []byte) (*ReportResult, error) {
	var res ReportResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
