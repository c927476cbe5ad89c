package analytics

import (
	"context"
	"fmt"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

// GA4Reporter calls the Google Analytics Data API.
type GA4Reporter struct {
	svc *analyticsdata.Service
}

// NewGA4Reporter authenticates with a service account JSON key.
func NewGA4Reporter(ctx context.Context, credentialsJSON []byte) (*GA4Reporter, error) {
	svc, err := analyticsdata.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(analyticsdata.AnalyticsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create analytics data client: %w", err)
	}
	return &GA4Reporter{svc: svc}, nil
}

func (r *GA4Reporter) RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
	return r.svc.Properties.RunReport(property, req).Context(ctx).Do()
}
