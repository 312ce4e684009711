package models

import (
	"errors"
	"time"
)

type DurationUnit string

const (
	DurationHourly  DurationUnit = "hourly"
	DurationDaily   DurationUnit = "daily"
	DurationWeekly  DurationUnit = "weekly"
	DurationMonthly DurationUnit = "monthly"
)

func (u DurationUnit) IsValid() bool {
	switch u {
	case DurationHourly, DurationDaily, DurationWeekly, DurationMonthly:
		return true
	}
	return false
}

var ErrInvalidRentalPeriod = errors.New("rental period end must be after start")

// RentalPeriod is a rental window with its billable duration.
type RentalPeriod struct {
	ID            int64        `json:"id,omitempty"`
	StartDateTime time.Time    `json:"start_date_time"`
	EndDateTime   time.Time    `json:"end_date_time"`
	DurationValue int          `json:"duration_value"`
	DurationUnit  DurationUnit `json:"duration_unit"`
}

// NewRentalPeriod picks the coarsest unit the window fits under:
// less than a day bills hourly, less than a week daily, less than thirty
// days weekly, otherwise monthly. Partial units round up.
func NewRentalPeriod(start, end time.Time) (RentalPeriod, error) {
	if !end.After(start) {
		return RentalPeriod{}, ErrInvalidRentalPeriod
	}

	p := RentalPeriod{StartDateTime: start, EndDateTime: end}
	hours := ceilDiv(end.Sub(start), time.Hour)
	days := ceilDiv(end.Sub(start), 24*time.Hour)

	switch {
	case hours < 24:
		p.DurationUnit, p.DurationValue = DurationHourly, hours
	case days < 7:
		p.DurationUnit, p.DurationValue = DurationDaily, days
	case days < 30:
		p.DurationUnit, p.DurationValue = DurationWeekly, (days+6)/7
	default:
		p.DurationUnit, p.DurationValue = DurationMonthly, (days+29)/30
	}

	return p, nil
}

func (p RentalPeriod) Duration() time.Duration {
	return p.EndDateTime.Sub(p.StartDateTime)
}

// Days is the window length in whole days, rounded up.
func (p RentalPeriod) Days() int {
	return ceilDiv(p.Duration(), 24*time.Hour)
}

func ceilDiv(d, unit time.Duration) int {
	n := int(d / unit)
	if d%unit != 0 {
		n++
	}
	return n
}
