package monitor

import (
	"fmt"
	"time"
)

// Direction is the side of the threshold that fires an alert.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Metric is the quantity an alert compares against its threshold.
type Metric string

const (
	// MetricPrice compares the price in SOL per token.
	MetricPrice Metric = "price"
	// MetricPercentChange compares the percent change from the alert reference price.
	MetricPercentChange Metric = "percent_change"
)

// ActionType is what happens when an alert fires.
type ActionType string

const (
	ActionNotify ActionType = "notify"
	ActionSell   ActionType = "sell"
)

// Action is one step dispatched when an alert fires.
type Action struct {
	Type ActionType `json:"type"`
	// Fraction of the original position to sell, for ActionSell.
	Fraction float64 `json:"fraction,omitempty"`
}

// AlertSpec describes an alert to arm.
type AlertSpec struct {
	Label     string    `json:"label"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
	Metric    Metric    `json:"metric"`
	// Reference is the base price for MetricPercentChange; zero uses the campaign's first price.
	Reference float64  `json:"reference,omitempty"`
	Actions   []Action `json:"actions"`
}

// Validate checks the spec.
func (s AlertSpec) Validate() error {
	if s.Direction != Above && s.Direction != Below {
		return fmt.Errorf("invalid alert direction %q", s.Direction)
	}
	if s.Metric != MetricPrice && s.Metric != MetricPercentChange {
		return fmt.Errorf("invalid alert metric %q", s.Metric)
	}
	if s.Metric == MetricPrice && s.Threshold <= 0 {
		return fmt.Errorf("price threshold must be positive, got %v", s.Threshold)
	}
	if s.Reference < 0 {
		return fmt.Errorf("negative reference price %v", s.Reference)
	}
	for _, a := range s.Actions {
		switch a.Type {
		case ActionNotify:
		case ActionSell:
			if a.Fraction <= 0 || a.Fraction > 1 {
				return fmt.Errorf("sell fraction must be in (0,1], got %v", a.Fraction)
			}
		default:
			return fmt.Errorf("invalid action %q", a.Type)
		}
	}
	return nil
}

// Alert is an armed alert. Alerts fire once.
type Alert struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Spec       AlertSpec `json:"spec"`
	Fired      bool      `json:"fired"`
	FiredAt    time.Time `json:"fired_at,omitempty"`
	FiredPrice float64   `json:"fired_price,omitempty"`
}

// value returns the metric for price given the campaign's first price.
func (a *Alert) value(price, initial float64) (float64, bool) {
	switch a.Spec.Metric {
	case MetricPrice:
		return price, true
	case MetricPercentChange:
		ref := a.Spec.Reference
		if ref == 0 {
			ref = initial
		}
		if ref <= 0 {
			return 0, false
		}
		return (price - ref) / ref * 100, true
	default:
		return 0, false
	}
}

// check reports whether price crosses the threshold. It does not mark the alert.
func (a *Alert) check(price, initial float64) bool {
	if a.Fired {
		return false
	}
	v, ok := a.value(price, initial)
	if !ok {
		return false
	}
	if a.Spec.Direction == Above {
		return v >= a.Spec.Threshold
	}
	return v <= a.Spec.Threshold
}

// Fired is passed to the action handler.
type Fired struct {
	Campaign CampaignInfo
	Alert    Alert
	Price    float64
}
