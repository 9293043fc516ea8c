package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenclass/authcore/internal/fingerprint"
	"github.com/lumenclass/authcore/internal/models"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
)

// AttemptHistoryRepository is the slice of the login-attempt store the risk
// engine reads for its cross-account signals.
type AttemptHistoryRepository interface {
	CountRecentByEmail(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

// IPReputation answers whether an IP is on a known-bad list.
type IPReputation interface {
	IsKnownBad(ipAddress string) bool
}

// StaticIPReputation is a fixed denylist, loaded from config or ops tooling.
type StaticIPReputation struct {
	denylist map[string]bool
}

func NewStaticIPReputation(addresses []string) *StaticIPReputation {
	denylist := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		denylist[addr] = true
	}
	return &StaticIPReputation{denylist: denylist}
}

func (r *StaticIPReputation) IsKnownBad(ipAddress string) bool {
	return r.denylist[ipAddress]
}

// Scoring rules. Additive, capped at 100. The exact point values and
// thresholds are load-bearing: the require-2FA and block decisions key off
// them, so changes here change authentication policy.
const (
	pointsNewCountry      = 15
	pointsUnusualCountry  = 25
	pointsNewDevice       = 20
	pointsDeviceMismatch  = 15
	pointsUnusualHour     = 10
	pointsAttemptVelocity = 30
	pointsKnownBadIP      = 35
	pointsIPFailures      = 20

	scoreCap               = 100
	thresholdRequireAuth   = 25
	thresholdBlock         = 75
	unusualCountryShare    = 0.05
	unusualHourShare       = 0.10
	velocityWindow         = 5 * time.Minute
	velocityMaxAttempts    = 3
	ipFailureWindow        = 24 * time.Hour
	ipFailureThreshold     = 3
	deviceMismatchLastN    = 5
)

// RiskService scores a login attempt against the account's history. It is a
// heuristic scorer, not a classifier; the rule list and thresholds are fixed
// policy. Store failures on cross-account signals fail open: the factor is
// skipped and scoring continues.
type RiskService struct {
	attempts    AttemptHistoryRepository
	reputation  IPReputation
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewRiskService(attempts AttemptHistoryRepository, reputation IPReputation, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *RiskService {
	return &RiskService{
		attempts:    attempts,
		reputation:  reputation,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Assess scores the attempt. history is the account's prior attempts, newest
// first; an empty history skips every history-dependent factor so brand-new
// accounts start at zero. knownDevice reports whether the fingerprint hash
// was seen on a prior successful login.
func (s *RiskService) Assess(ctx context.Context, attempt *models.LoginAttempt, history []models.LoginAttempt, knownDevice bool) *models.RiskAssessment {
	assessment := &models.RiskAssessment{
		Factors: []models.RiskFactor{},
	}

	successes := successfulAttempts(history)

	if len(successes) > 0 {
		s.scoreCountry(assessment, attempt, successes)
		if !knownDevice {
			addFactor(assessment, "new_device", pointsNewDevice,
				"Login from a device fingerprint never seen on a successful login")
		}
		s.scoreDeviceMismatch(assessment, attempt, successes)
		s.scoreHour(assessment, attempt, successes)
	}

	s.scoreVelocity(ctx, assessment, attempt)
	s.scoreIP(ctx, assessment, attempt)

	if assessment.Score > scoreCap {
		assessment.Score = scoreCap
	}
	assessment.Level = riskLevel(assessment.Score)
	assessment.RequireAdditionalAuth = assessment.Score >= thresholdRequireAuth
	assessment.BlockAccess = assessment.Score >= thresholdBlock

	accountID := ""
	if attempt.AccountID != nil {
		accountID = *attempt.AccountID
	}
	s.auditLogger.LogRiskAssessment(accountID, assessment.Score, assessment.Level,
		assessment.RequireAdditionalAuth, assessment.BlockAccess)

	return assessment
}

// scoreCountry applies the new-country or unusual-country factor. They are
// mutually exclusive: a never-seen country is "new", a seen-but-rare one
// (under 5% of successful logins) is "unusual" and scores higher.
func (s *RiskService) scoreCountry(a *models.RiskAssessment, attempt *models.LoginAttempt, successes []models.LoginAttempt) {
	if attempt.Country == nil || *attempt.Country == "" {
		return
	}

	total := 0
	matching := 0
	for _, prev := range successes {
		if prev.Country == nil || *prev.Country == "" {
			continue
		}
		total++
		if *prev.Country == *attempt.Country {
			matching++
		}
	}
	if total == 0 {
		return
	}

	if matching == 0 {
		addFactor(a, "new_country", pointsNewCountry,
			"First login from this country for the account")
	} else if float64(matching)/float64(total) < unusualCountryShare {
		addFactor(a, "unusual_country", pointsUnusualCountry,
			"Country used in under 5% of past successful logins")
	}
}

// scoreDeviceMismatch compares os/browser against the last five successful
// logins' devices. A mismatch with every one of them scores.
func (s *RiskService) scoreDeviceMismatch(a *models.RiskAssessment, attempt *models.LoginAttempt, successes []models.LoginAttempt) {
	current := fingerprint.Derive(fingerprint.Signals{UserAgent: attempt.UserAgent})

	recent := successes
	if len(recent) > deviceMismatchLastN {
		recent = recent[:deviceMismatchLastN]
	}

	for _, prev := range recent {
		previous := fingerprint.Derive(fingerprint.Signals{UserAgent: prev.UserAgent})
		if previous.OS == current.OS && previous.Browser == current.Browser {
			return
		}
	}

	addFactor(a, "device_signal_mismatch", pointsDeviceMismatch,
		"OS and browser differ from the last five successful logins")
}

// scoreHour flags logins at an hour of day that accounts for under 10% of
// the account's successful login history.
func (s *RiskService) scoreHour(a *models.RiskAssessment, attempt *models.LoginAttempt, successes []models.LoginAttempt) {
	hour := attempt.AttemptTime.Hour()

	matching := 0
	for _, prev := range successes {
		if prev.AttemptTime.Hour() == hour {
			matching++
		}
	}

	if float64(matching)/float64(len(successes)) < unusualHourShare {
		addFactor(a, "unusual_hour", pointsUnusualHour,
			"Login at an hour rarely used by this account")
	}
}

// scoreVelocity flags more than three attempts for the same email inside the
// trailing five minutes, across all accounts.
func (s *RiskService) scoreVelocity(ctx context.Context, a *models.RiskAssessment, attempt *models.LoginAttempt) {
	count, err := s.attempts.CountRecentByEmail(ctx, attempt.Email, attempt.AttemptTime.Add(-velocityWindow))
	if err != nil {
		s.logger.Warn("velocity factor skipped, attempt count unavailable", slog.Any("error", err))
		return
	}
	if count > velocityMaxAttempts {
		addFactor(a, "attempt_velocity", pointsAttemptVelocity,
			"More than three login attempts for this email in five minutes")
	}
}

func (s *RiskService) scoreIP(ctx context.Context, a *models.RiskAssessment, attempt *models.LoginAttempt) {
	if s.reputation.IsKnownBad(attempt.IPAddress) {
		addFactor(a, "known_bad_ip", pointsKnownBadIP,
			"IP address is on a known-bad list")
	}

	failures, err := s.attempts.CountFailedByIP(ctx, attempt.IPAddress, attempt.AttemptTime.Add(-ipFailureWindow))
	if err != nil {
		s.logger.Warn("ip failure factor skipped, attempt count unavailable", slog.Any("error", err))
		return
	}
	if failures >= ipFailureThreshold {
		addFactor(a, "ip_failed_attempts", pointsIPFailures,
			"Repeated failed login attempts from this IP address")
	}
}

func addFactor(a *models.RiskAssessment, name string, points int, recommendation string) {
	a.Factors = append(a.Factors, models.RiskFactor{
		Name:           name,
		Points:         points,
		Recommendation: recommendation,
	})
	a.Score += points
}

func riskLevel(score int) string {
	switch {
	case score >= 75:
		return models.RiskCritical
	case score >= 50:
		return models.RiskHigh
	case score >= 25:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func successfulAttempts(history []models.LoginAttempt) []models.LoginAttempt {
	successes := make([]models.LoginAttempt, 0, len(history))
	for _, a := range history {
		if a.Success {
			successes = append(successes, a)
		}
	}
	return successes
}
