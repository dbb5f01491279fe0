package domain

import "time"

type QuotaDecision struct {
	Identifier string        `json:"identifier"`
	Allowed    bool          `json:"allowed"`
	Used       int64         `json:"used"`
	Limit      int64         `json:"limit"`
	Remaining  int64         `json:"remaining"`
	ResetIn    time.Duration `json:"-"`
	ResetSecs  int64         `json:"resetInSeconds"`
	FailedOpen bool          `json:"failedOpen,omitempty"`
}

type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

type CostReport struct {
	Date          string  `json:"date"`
	RequestCost   float64 `json:"requestCost"`
	DailyTotal    float64 `json:"dailyTotal"`
	Ceiling       float64 `json:"ceiling"`
	EmergencyStop bool    `json:"emergencyStop"`
}

type UsageReport struct {
	Date          string           `json:"date"`
	Identifiers   map[string]int64 `json:"identifiers"`
	TotalRequests int64            `json:"totalRequests"`
	DailyCost     float64          `json:"dailyCost"`
	EmergencyStop bool             `json:"emergencyStop"`
}
