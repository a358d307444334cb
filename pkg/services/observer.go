package services

import (
	"context"
	"errors"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/scraper"
)

// Metrics receives service-level counters. *metrics.Manager implements it.
type Metrics interface {
	RecordExportCache(result string)
	ObserveExport(elapsed time.Duration)
	RecordScrapeFailure(operation, reason string)
	RecordSummary(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecordExportCache(string)           {}
func (nopMetrics) ObserveExport(time.Duration)        {}
func (nopMetrics) RecordScrapeFailure(string, string) {}
func (nopMetrics) RecordSummary(string)               {}

func orNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

// scrapeReason labels a scraper error for metrics.
func scrapeReason(err error) string {
	switch {
	case errors.Is(err, scraper.ErrUnrecognizedLayout):
		return "layout"
	case errors.Is(err, scraper.ErrSourceUnreachable):
		return "unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
