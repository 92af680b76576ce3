package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
)

func newSettingsServiceForTest(t *testing.T, repo *stubSettingsRepo) SettingsService {
	t.Helper()
	svc, err := NewSettingsService(SettingsServiceDeps{
		Repository: repo,
		Clock: func() time.Time {
			return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("new settings service: %v", err)
	}
	return svc
}

func TestSettingsServiceUpdate(t *testing.T) {
	ctx := context.Background()
	var saved domain.CommerceSettings
	repo := &stubSettingsRepo{
		saveFn: func(_ context.Context, settings domain.CommerceSettings) error {
			saved = settings
			return nil
		},
	}
	svc := newSettingsServiceForTest(t, repo)

	settings, err := svc.Update(ctx, UpdateSettingsCommand{TaxRateBps: 1800, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if settings.TaxRateBps != 1800 {
		t.Fatalf("unexpected tax rate %d", settings.TaxRateBps)
	}
	if saved.TaxRateBps != 1800 {
		t.Fatalf("settings not persisted: %+v", saved)
	}
	if saved.UpdatedAt.IsZero() {
		t.Fatalf("update must stamp the settings")
	}
}

func TestSettingsServiceUpdateRejectsOutOfRangeRates(t *testing.T) {
	ctx := context.Background()
	svc := newSettingsServiceForTest(t, &stubSettingsRepo{})

	cases := []struct {
		name    string
		rateBps int64
	}{
		{name: "negative", rateBps: -1},
		{name: "above one hundred percent", rateBps: 10_001},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Update(ctx, UpdateSettingsCommand{TaxRateBps: tc.rateBps}); !errors.Is(err, ErrSettingsInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestSettingsServiceGet(t *testing.T) {
	ctx := context.Background()
	repo := &stubSettingsRepo{
		getFn: func(context.Context) (domain.CommerceSettings, error) {
			return domain.CommerceSettings{TaxRateBps: 500}, nil
		},
	}
	svc := newSettingsServiceForTest(t, repo)

	settings, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.TaxRateBps != 500 {
		t.Fatalf("unexpected tax rate %d", settings.TaxRateBps)
	}
}
