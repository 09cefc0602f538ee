package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hanko-field/orderengine/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceHealthReportFillsDefaults(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.HealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"pubsub":    {Status: domain.HealthStatusDegraded, Detail: "slow"},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected GeneratedAt %v, got %v", now, report.GeneratedAt)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one collect call, got %d", repo.calls)
	}
}

func TestSystemServiceHealthReportPropagatesErrors(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("boom")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := map[string]struct {
		checks map[string]domain.HealthCheck
		want   domain.HealthStatus
	}{
		"empty":    {checks: nil, want: domain.HealthStatusOK},
		"all ok":   {checks: map[string]domain.HealthCheck{"a": {Status: domain.HealthStatusOK}}, want: domain.HealthStatusOK},
		"degraded": {checks: map[string]domain.HealthCheck{"a": {Status: domain.HealthStatusDegraded}}, want: domain.HealthStatusDegraded},
		"error wins": {checks: map[string]domain.HealthCheck{
			"a": {Status: domain.HealthStatusDegraded},
			"b": {Status: domain.HealthStatusError},
		}, want: domain.HealthStatusError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := deriveStatus(tc.checks); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
