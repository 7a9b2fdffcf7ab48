package domain

import (
	"slices"
	"time"
)

// Criteria is a single eligibility dimension, encoded as {"$in": [...]}.
type Criteria struct {
	In []string `json:"$in" yaml:"$in" validate:"required,min=1,dive,required"`
}

// HourCriteria restricts values to hours of the day in UTC.
type HourCriteria struct {
	In []string `json:"$in" yaml:"$in" validate:"required,min=1,dive,oneof=0 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 17 18 19 20 21 22 23"`
}

type Accept struct {
	GeoState Criteria     `json:"geoState" yaml:"geoState"`
	Hour     HourCriteria `json:"hour" yaml:"hour"`
}

// Matches reports whether a visitor from region at hour meets both criteria.
func (a Accept) Matches(region, hour string) bool {
	return slices.Contains(a.GeoState.In, region) && slices.Contains(a.Hour.In, hour)
}

// Target is a registered destination. Numeric fields stay strings on the wire.
type Target struct {
	ID               string `json:"id" yaml:"id" validate:"required"`
	URL              string `json:"url" yaml:"url" validate:"required"`
	Value            string `json:"value" yaml:"value" validate:"required,decimal"`
	MaxAcceptsPerDay string `json:"maxAcceptsPerDay" yaml:"maxAcceptsPerDay" validate:"required,count"`
	Accept           Accept `json:"accept" yaml:"accept"`
}

// VisitorRequest is the wire form of a visitor.
type VisitorRequest struct {
	GeoState  string `json:"geoState" validate:"required"`
	Publisher string `json:"publisher" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// Visitor parses the request timestamp. Call Validate first.
func (r VisitorRequest) Visitor() (Visitor, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return Visitor{}, Invalid("timestamp: %v", err)
	}
	return Visitor{GeoState: r.GeoState, Publisher: r.Publisher, Timestamp: ts}, nil
}

type Visitor struct {
	GeoState  string
	Publisher string // not used for matching
	Timestamp time.Time
}

const DecisionReject = "reject"

type Decision struct {
	URL      string `json:"url,omitempty"`
	Decision string `json:"decision,omitempty"`

	TargetID string `json:"-"`
}

func Reject() Decision { return Decision{Decision: DecisionReject} }

func Accepted(t Target) Decision { return Decision{URL: t.URL, TargetID: t.ID} }

func (d Decision) Rejected() bool { return d.Decision == DecisionReject }
