package models

// Risk levels bucketed from the 0-100 score.
const (
	RiskLow      = "low"      // < 25
	RiskMedium   = "medium"   // 25-49
	RiskHigh     = "high"     // 50-74
	RiskCritical = "critical" // >= 75
)

// RiskFactor is one triggered scoring rule with its contribution and a
// human-readable recommendation for display/audit.
type RiskFactor struct {
	Name           string `json:"name"`
	Points         int    `json:"points"`
	Recommendation string `json:"recommendation"`
}

// RiskAssessment is computed per login attempt and never persisted as its
// own entity; it is logged as metadata and drives the allow / require-2FA /
// block decision.
type RiskAssessment struct {
	Score                 int          `json:"score"`
	Level                 string       `json:"level"`
	Factors               []RiskFactor `json:"factors"`
	RequireAdditionalAuth bool         `json:"require_additional_auth"`
	BlockAccess           bool         `json:"block_access"`
}
