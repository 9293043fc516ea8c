package services

import (
	"context"
	"testing"
	"time"

	"github.com/lumenclass/authcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	windowsChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (Version/17.0 Mobile/15E148) Safari/604.1"
)

func newTestRiskService(attempts *MockAttemptHistoryRepository, badIPs ...string) *RiskService {
	return NewRiskService(attempts, NewStaticIPReputation(badIPs), newTestLogger(), newTestAuditLogger())
}

func baselineAttempt(country string) *models.LoginAttempt {
	accountID := "user123"
	attempt := &models.LoginAttempt{
		AccountID:         &accountID,
		Email:             "student@lumenclass.io",
		IPAddress:         "203.0.113.10",
		UserAgent:         windowsChromeUA,
		DeviceFingerprint: "fp_known",
		AttemptTime:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	if country != "" {
		attempt.Country = &country
	}
	return attempt
}

// steadyHistory builds n successful logins matching the baseline attempt on
// every dimension, so no history factor triggers against it.
func steadyHistory(n int, country string) []models.LoginAttempt {
	history := make([]models.LoginAttempt, 0, n)
	for i := 0; i < n; i++ {
		at := time.Date(2026, 3, 1+i%28, 9, 0, 0, 0, time.UTC)
		a := NewTestAttempt("user123", "student@lumenclass.io", "203.0.113.10", windowsChromeUA, "fp_known", true, at)
		if country != "" {
			c := country
			a.Country = &c
		}
		history = append(history, a)
	}
	return history
}

func TestAssess_ColdStartScoresZero(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	assessment := svc.Assess(context.Background(), baselineAttempt("DE"), nil, false)

	assert.Equal(t, 0, assessment.Score)
	assert.Equal(t, models.RiskLow, assessment.Level)
	assert.Empty(t, assessment.Factors)
	assert.False(t, assessment.RequireAdditionalAuth)
	assert.False(t, assessment.BlockAccess)
}

func TestAssess_BaselineMatchScoresZero(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	assessment := svc.Assess(context.Background(), baselineAttempt("DE"), steadyHistory(20, "DE"), true)

	assert.Equal(t, 0, assessment.Score)
	assert.False(t, assessment.RequireAdditionalAuth)
}

func TestAssess_NewCountry(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	assessment := svc.Assess(context.Background(), baselineAttempt("BR"), steadyHistory(20, "DE"), true)

	require.Len(t, assessment.Factors, 1)
	assert.Equal(t, "new_country", assessment.Factors[0].Name)
	assert.Equal(t, 15, assessment.Score)
}

func TestAssess_UnusualCountryBeatsNewCountry(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	// 1 of 30 successful logins from BR: seen, but under the 5% share.
	history := steadyHistory(30, "DE")
	br := "BR"
	history[7].Country = &br

	assessment := svc.Assess(context.Background(), baselineAttempt("BR"), history, true)

	require.Len(t, assessment.Factors, 1)
	assert.Equal(t, "unusual_country", assessment.Factors[0].Name)
	assert.Equal(t, 25, assessment.Score)
}

func TestAssess_NewDevice(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	assessment := svc.Assess(context.Background(), baselineAttempt("DE"), steadyHistory(10, "DE"), false)

	assert.Equal(t, 20, assessment.Score)
	require.Len(t, assessment.Factors, 1)
	assert.Equal(t, "new_device", assessment.Factors[0].Name)
}

func TestAssess_DeviceSignalMismatch(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	attempt := baselineAttempt("DE")
	attempt.UserAgent = iphoneSafariUA
	attempt.DeviceFingerprint = "fp_new"

	assessment := svc.Assess(context.Background(), attempt, steadyHistory(10, "DE"), false)

	names := factorNames(assessment)
	assert.Contains(t, names, "new_device")
	assert.Contains(t, names, "device_signal_mismatch")
	assert.Equal(t, 35, assessment.Score)
	assert.True(t, assessment.RequireAdditionalAuth)
}

func TestAssess_UnusualHour(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	attempt := baselineAttempt("DE")
	attempt.AttemptTime = time.Date(2026, 3, 10, 3, 12, 0, 0, time.UTC)

	assessment := svc.Assess(context.Background(), attempt, steadyHistory(20, "DE"), true)

	require.Len(t, assessment.Factors, 1)
	assert.Equal(t, "unusual_hour", assessment.Factors[0].Name)
	assert.Equal(t, 10, assessment.Score)
}

func TestAssess_AttemptVelocity(t *testing.T) {
	attempts := &MockAttemptHistoryRepository{
		CountRecentByEmailFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			return 4, nil
		},
	}
	svc := newTestRiskService(attempts)

	assessment := svc.Assess(context.Background(), baselineAttempt("DE"), steadyHistory(20, "DE"), true)

	require.Len(t, assessment.Factors, 1)
	assert.Equal(t, "attempt_velocity", assessment.Factors[0].Name)
	assert.Equal(t, 30, assessment.Score)
	assert.True(t, assessment.RequireAdditionalAuth)
}

func TestAssess_IPFactorsApplyWithoutHistory(t *testing.T) {
	attempts := &MockAttemptHistoryRepository{
		CountFailedByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
			return 3, nil
		},
	}
	svc := newTestRiskService(attempts, "203.0.113.10")

	assessment := svc.Assess(context.Background(), baselineAttempt("DE"), nil, false)

	names := factorNames(assessment)
	assert.Contains(t, names, "known_bad_ip")
	assert.Contains(t, names, "ip_failed_attempts")
	assert.Equal(t, 55, assessment.Score)
	assert.Equal(t, models.RiskHigh, assessment.Level)
}

func TestAssess_MonotoneAndCapped(t *testing.T) {
	attempts := &MockAttemptHistoryRepository{
		CountRecentByEmailFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			return 10, nil
		},
		CountFailedByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
			return 10, nil
		},
	}
	svc := newTestRiskService(attempts, "198.51.100.1")

	// Every factor at once: 15+20+15+10+30+35+20 = 145, capped at 100.
	attempt := baselineAttempt("BR")
	attempt.IPAddress = "198.51.100.1"
	attempt.UserAgent = iphoneSafariUA
	attempt.AttemptTime = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	assessment := svc.Assess(context.Background(), attempt, steadyHistory(20, "DE"), false)

	assert.Equal(t, 100, assessment.Score)
	assert.Equal(t, models.RiskCritical, assessment.Level)
	assert.True(t, assessment.RequireAdditionalAuth)
	assert.True(t, assessment.BlockAccess)
	assert.Len(t, assessment.Factors, 7)
}

func TestAssess_Thresholds(t *testing.T) {
	svc := newTestRiskService(&MockAttemptHistoryRepository{})

	// new_device alone: 20 points, still below the 2FA threshold.
	low := svc.Assess(context.Background(), baselineAttempt("DE"), steadyHistory(10, "DE"), false)
	assert.False(t, low.RequireAdditionalAuth)
	assert.Equal(t, models.RiskLow, low.Level)

	// new_device + new_country: 35 points, medium, requires 2FA.
	medium := svc.Assess(context.Background(), baselineAttempt("BR"), steadyHistory(10, "DE"), false)
	assert.True(t, medium.RequireAdditionalAuth)
	assert.False(t, medium.BlockAccess)
	assert.Equal(t, models.RiskMedium, medium.Level)
}

func TestAssess_HistoryCountErrorFailsOpen(t *testing.T) {
	attempts := &MockAttemptHistoryRepository{
		CountRecentByEmailFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			return 0, models.ErrConnection
		},
		CountFailedByIPFunc: func(ctx context.Context, ipAddress string, since time.Time) (int, error) {
			return 0, models.ErrConnection
		},
	}
	svc := newTestRiskService(attempts)

	assessment := svc.Assess(context.Background(), baselineAttempt("DE"), steadyHistory(20, "DE"), true)

	assert.Equal(t, 0, assessment.Score)
}

func factorNames(a *models.RiskAssessment) []string {
	names := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		names = append(names, f.Name)
	}
	return names
}
