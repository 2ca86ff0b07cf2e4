// Package params turns dashboard and export query parameters into a reading filter.
package params

import (
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/filter"
	datefilter "github.com/herdwatch/herdwatch/internal/filter/date_filter"
	temperaturefilter "github.com/herdwatch/herdwatch/internal/filter/temperature_filter"
	timefilter "github.com/herdwatch/herdwatch/internal/filter/time_filter"
)

// Params holds the raw filter parameters exactly as the client sent them,
// so they can be echoed back into the filter form.
type Params struct {
	Date      string `form:"date"`
	TempMin   string `form:"temp_min"`
	StartTime string `form:"start_time"`
	EndTime   string `form:"end_time"`
}

// IsEmpty reports whether no parameter was supplied.
func (p Params) IsEmpty() bool {
	return p.Date == "" && p.TempMin == "" && p.StartTime == "" && p.EndTime == ""
}

// Encode returns the non-empty parameters as a query string.
func (p Params) Encode() string {
	v := url.Values{}
	for key, value := range map[string]string{
		"date":       p.Date,
		"temp_min":   p.TempMin,
		"start_time": p.StartTime,
		"end_time":   p.EndTime,
	} {
		if value != "" {
			v.Set(key, value)
		}
	}
	return v.Encode()
}

// Filter builds the combined filter. Parameters that cannot be parsed are
// treated as omitted.
func (p Params) Filter() *filter.Filter {
	var filters []filter.Filterer

	if p.Date != "" {
		if f, err := datefilter.Parse(p.Date); err != nil {
			log.Debug("Ignoring date parameter.", "error", err)
		} else {
			filters = append(filters, f)
		}
	}

	if p.TempMin != "" {
		if f, err := temperaturefilter.Parse(p.TempMin); err != nil {
			log.Debug("Ignoring temp_min parameter.", "error", err)
		} else {
			filters = append(filters, f)
		}
	}

	start, end := p.StartTime, p.EndTime
	if start != "" {
		if _, err := timefilter.Parse(start, ""); err != nil {
			log.Debug("Ignoring start_time parameter.", "error", err)
			start = ""
		}
	}
	if end != "" {
		if _, err := timefilter.Parse("", end); err != nil {
			log.Debug("Ignoring end_time parameter.", "error", err)
			end = ""
		}
	}
	if start != "" || end != "" {
		if f, err := timefilter.Parse(start, end); err == nil {
			filters = append(filters, f)
		}
	}

	return filter.New(filters...)
}
