// Package analytics proxies Google Analytics 4 reports and caches them.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
)

const (
	DefaultTTL   = 5 * time.Minute
	DefaultLimit = 100
	MaxLimit     = 10000

	defaultStart  = "7daysAgo"
	defaultEnd    = "today"
	defaultMetric = "activeUsers"
)

var (
	ErrNotConfigured  = errors.New("analytics is not configured")
	ErrInvalidRequest = errors.New("invalid request")
)

var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_:]*$`)

// Query is the body of the report endpoint.
type Query struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Metrics    []string `json:"metrics"`
	Dimensions []string `json:"dimensions"`
	Limit      int64    `json:"limit"`
}

// normalize applies defaults and validates field names.
func (q Query) normalize() (Query, error) {
	if strings.TrimSpace(q.StartDate) == "" {
		q.StartDate = defaultStart
	}
	if strings.TrimSpace(q.EndDate) == "" {
		q.EndDate = defaultEnd
	}
	if len(q.Metrics) == 0 {
		q.Metrics = []string{defaultMetric}
	}

	switch {
	case q.Limit < 0 || q.Limit > MaxLimit:
		return Query{}, fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidRequest, MaxLimit)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	}

	for _, name := range append(append([]string{}, q.Metrics...), q.Dimensions...) {
		if !fieldName.MatchString(name) {
			return Query{}, fmt.Errorf("%w: bad field name %q", ErrInvalidRequest, name)
		}
	}

	return q, nil
}

func (q Query) cacheKey() string {
	data, _ := json.Marshal(q)
	return string(data)
}

// Report is a flattened report: one map per row, keyed by dimension and
// metric names.
type Report struct {
	Rows     []map[string]string `json:"rows"`
	RowCount int64               `json:"rowCount"`
	Cached   bool                `json:"cached"`
}

// Reporter runs a GA4 report for a property.
type Reporter interface {
	RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error)
}

// Service runs cached reports for one property.
type Service struct {
	reporter Reporter
	property string
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewService returns a service. A nil reporter or empty property disables it.
func NewService(reporter Reporter, propertyID string, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	property := strings.TrimSpace(propertyID)
	if property != "" && !strings.HasPrefix(property, "properties/") {
		property = "properties/" + property
	}

	return &Service{
		reporter: reporter,
		property: property,
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Report returns the flattened report for q, from cache when fresh.
func (s *Service) Report(ctx context.Context, q Query) (Report, error) {
	if s.reporter == nil || s.property == "" {
		return Report{}, ErrNotConfigured
	}

	q, err := q.normalize()
	if err != nil {
		return Report{}, err
	}

	key := q.cacheKey()
	if cached, ok := s.cache.Get(key); ok {
		report := cached.(Report)
		report.Cached = true
		return report, nil
	}

	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: q.StartDate, EndDate: q.EndDate}},
		Limit:      q.Limit,
	}
	for _, m := range q.Metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}
	for _, d := range q.Dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}

	resp, err := s.reporter.RunReport(ctx, s.property, req)
	if err != nil {
		return Report{}, fmt.Errorf("run report: %w", err)
	}

	report := flatten(resp)
	s.cache.Set(key, report, cache.DefaultExpiration)
	s.logger.Debug("analytics report fetched", zap.Int("rows", len(report.Rows)))

	return report, nil
}

func flatten(resp *analyticsdata.RunReportResponse) Report {
	report := Report{Rows: []map[string]string{}}
	if resp == nil {
		return report
	}

	report.RowCount = resp.RowCount
	for _, row := range resp.Rows {
		flat := make(map[string]string, len(resp.DimensionHeaders)+len(resp.MetricHeaders))
		for i, v := range row.DimensionValues {
			if i < len(resp.DimensionHeaders) {
				flat[resp.DimensionHeaders[i].Name] = v.Value
			}
		}
		for i, v := range row.MetricValues {
			if i < len(resp.MetricHeaders) {
				flat[resp.MetricHeaders[i].Name] = v.Value
			}
		}
		report.Rows = append(report.Rows, flat)
	}

	return report
}
