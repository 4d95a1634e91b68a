package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call log metrics for one agent.
type CallsSummaryRequest struct {
	AgentID string    `json:"agent_id"`
	Range   TimeRange `json:"range"`
}

type CallsSummary struct {
	AgentID string `json:"agent_id"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	NoAnswerCalls  int `json:"no_answer_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectionRate is completed / total; zero without calls.
	ConnectionRate float64 `json:"connection_rate"`
}

// OutcomeSummaryRequest counts saved outcomes from the audit trail.
// CampaignID is optional.
type OutcomeSummaryRequest struct {
	AgentID    string    `json:"agent_id"`
	Range      TimeRange `json:"range"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

type OutcomeSummary struct {
	AgentID    string `json:"agent_id"`
	CampaignID string `json:"campaign_id,omitempty"`

	Saved     int            `json:"saved"`
	ByOutcome map[string]int `json:"by_outcome"`

	Sales int `json:"sales"`
	// ConversionRate is sales / saved outcomes.
	ConversionRate float64 `json:"conversion_rate"`
}
