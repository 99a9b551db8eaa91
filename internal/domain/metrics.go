package domain

import (
	"encoding/json"
	"time"
)

// MetricVector is the normalized result of one synthetic page-speed run.
// Nil fields mean the provider did not report that metric; a vector with a
// missing field still contributes its present fields to aggregation.
type MetricVector struct {
	Performance  *float64 `db:"performance" json:"performance,omitempty"`
	FCP          *float64 `db:"fcp" json:"fcp,omitempty"`
	LCP          *float64 `db:"lcp" json:"lcp,omitempty"`
	CLS          *float64 `db:"cls" json:"cls,omitempty"`
	TBT          *float64 `db:"tbt" json:"tbt,omitempty"`
	TTI          *float64 `db:"tti" json:"tti,omitempty"`
	TTFB         *float64 `db:"ttfb" json:"ttfb,omitempty"`
	SpeedIndex   *float64 `db:"speed_index" json:"speed_index,omitempty"`
	PageWeight   *float64 `db:"page_weight" json:"page_weight,omitempty"`
	RequestCount *float64 `db:"request_count" json:"request_count,omitempty"`
}

// RawRun is one measurement attempt. Rows are append-only and kept for audit
// even though only the per-group median is surfaced to users.
type RawRun struct {
	ID         string     `db:"id" json:"id"`
	SiteID     string     `db:"site_id" json:"site_id"`
	BatchID    string     `db:"batch_id" json:"batch_id"`
	PageType   PageType   `db:"page_type" json:"page_type"`
	PageURL    string     `db:"page_url" json:"page_url"`
	DeviceType DeviceType `db:"device_type" json:"device_type"`
	RunNumber  int        `db:"run_number" json:"run_number"`

	MetricVector

	DiagnosticPayload json.RawMessage `db:"diagnostic_payload" json:"diagnostic_payload,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// GroupKey returns the (page, device) group this run belongs to.
func (r *RawRun) GroupKey() GroupKey {
	return GroupKey{PageType: r.PageType, DeviceType: r.DeviceType}
}

// MedianMetric is the element-wise median of the successful runs in one
// (page, device) group. One row per group per batch, written once all runs in
// the group have resolved, never updated.
type MedianMetric struct {
	ID         string     `db:"id" json:"id"`
	SiteID     string     `db:"site_id" json:"site_id"`
	BatchID    string     `db:"batch_id" json:"batch_id"`
	PageType   PageType   `db:"page_type" json:"page_type"`
	PageURL    string     `db:"page_url" json:"page_url"`
	DeviceType DeviceType `db:"device_type" json:"device_type"`
	RunCount   int        `db:"run_count" json:"run_count"`

	MetricVector

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
