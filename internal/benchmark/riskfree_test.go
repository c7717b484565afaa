package benchmark

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

func TestSelectTenor(t *testing.T) {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		days int
		want types.RateTenor
	}{
		{90, types.TenorTB1Y},
		{364, types.TenorTB1Y},
		{365, types.TenorTB3Y},
		{1094, types.TenorTB3Y},
		{1095, types.TenorTB5Y},
		{2000, types.TenorTB5Y},
	}
	for _, tc := range cases {
		if got := SelectTenor(base, base.AddDate(0, 0, tc.days)); got != tc.want {
			t.Errorf("%d days: expected %s, got %s", tc.days, tc.want, got)
		}
	}
}

func TestRiskFreeRateUserProvided(t *testing.T) {
	svc := NewService(zap.NewNop(), &fakeSource{})
	user := 0.042
	rate, info, err := svc.RiskFreeRate(context.Background(), time.Now().AddDate(-1, 0, 0), time.Now(), &user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 0.042 {
		t.Errorf("user rate must pass through verbatim, got %f", rate)
	}
	if info.RateType != "USER_PROVIDED" || info.SelectionReason != "user_specified" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestRiskFreeRateAveraged(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{rates: []types.RateRow{
		{Tenor: types.TenorTB1Y, Date: base, Rate: 3.00},
		{Tenor: types.TenorTB1Y, Date: base.AddDate(0, 0, 1), Rate: 3.50},
	}}
	svc := NewService(zap.NewNop(), src)

	rate, info, err := svc.RiskFreeRate(context.Background(), base, base.AddDate(0, 3, 0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(rate-0.0325) > 1e-12 {
		t.Errorf("expected averaged 0.0325, got %f", rate)
	}
	if info.RateType != string(types.TenorTB1Y) {
		t.Errorf("short period should pick TB1Y, got %s", info.RateType)
	}
}

func TestRiskFreeRateMissingData(t *testing.T) {
	svc := NewService(zap.NewNop(), &fakeSource{})
	rate, info, err := svc.RiskFreeRate(context.Background(), time.Now().AddDate(-2, 0, 0), time.Now(), nil)
	if err != nil {
		t.Fatalf("absent tenor data is not a failure: %v", err)
	}
	if rate != 0.0 {
		t.Errorf("missing treasury data must degrade to 0, got %f", rate)
	}
	if info.RateType != string(types.TenorTB3Y) {
		t.Errorf("two-year period should pick TB3Y, got %s", info.RateType)
	}
}

func TestRiskFreeRateRetrievalFailure(t *testing.T) {
	src := &fakeSource{ratesErr: errors.New("database connection refused")}
	svc := NewService(zap.NewNop(), src)
	rate, info, err := svc.RiskFreeRate(context.Background(), time.Now().AddDate(-1, 0, 0), time.Now(), nil)
	if err == nil {
		t.Fatal("rate source failure must surface as an error")
	}
	if rate != 0.0 {
		t.Errorf("failed retrieval must not invent a rate, got %f", rate)
	}
	if info == nil || info.RateType != string(types.TenorTB1Y) {
		t.Errorf("info must still carry the selected tenor, got %+v", info)
	}
}
