package notify

import "time"

// AttemptOutcome classifies one channel attempt.
type AttemptOutcome string

const (
	OutcomeSuccess          AttemptOutcome = "success"
	OutcomeTransientFailure AttemptOutcome = "transient_failure"
	OutcomePermanentFailure AttemptOutcome = "permanent_failure"
	OutcomeSkipped          AttemptOutcome = "skipped"
)

// Skip reasons recorded on OutcomeSkipped attempts. A skipped channel was
// never invoked; the reason says why, so "we didn't try" is never confused
// with "we tried and failed".
const (
	SkipCircuitOpen    = "circuit_open"
	SkipNoSubscription = "no_subscription"
	SkipNoAdapter      = "no_adapter"
	SkipDeadline       = "deadline_exceeded"
)

// DispatchAttempt is the audit record of one channel attempt (or skip).
type DispatchAttempt struct {
	RequestID         string         `json:"request_id"`
	Channel           ChannelKind    `json:"channel"`
	StartedAt         time.Time      `json:"started_at"`
	Duration          time.Duration  `json:"duration,omitempty"`
	Outcome           AttemptOutcome `json:"outcome"`
	Retries           int            `json:"retries,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	ErrorDetail       string         `json:"error_detail,omitempty"`
}

// Receipt is a provider acknowledgement for one successful channel. A
// multi-channel send carries one receipt per channel that succeeded rather
// than electing a single representative message id.
type Receipt struct {
	Channel           ChannelKind `json:"channel"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	SentAt            time.Time   `json:"sent_at"`
}

// SuppressReason explains a successful no-op decision.
type SuppressReason string

const (
	SuppressQuietHours  SuppressReason = "quiet_hours"
	SuppressDailyLimit  SuppressReason = "daily_limit"
	SuppressGlobalLimit SuppressReason = "global_limit"
	SuppressKindMuted   SuppressReason = "kind_muted"
)

// DispatchResult aggregates everything that happened for one request.
type DispatchResult struct {
	RequestID         string            `json:"request_id"`
	Success           bool              `json:"success"`
	Suppressed        bool              `json:"suppressed,omitempty"`
	SuppressReason    SuppressReason    `json:"suppress_reason,omitempty"`
	Duplicate         bool              `json:"duplicate,omitempty"`
	Attempts          []DispatchAttempt `json:"attempts"`
	ChannelsSucceeded []ChannelKind     `json:"channels_succeeded,omitempty"`
	Receipts          []Receipt         `json:"receipts,omitempty"`
	CompletedAt       time.Time         `json:"completed_at"`
}

// Suppress builds the no-op result for an admission-control denial.
func Suppress(requestID string, reason SuppressReason, at time.Time) *DispatchResult {
	return &DispatchResult{
		RequestID:      requestID,
		Success:        true,
		Suppressed:     true,
		SuppressReason: reason,
		CompletedAt:    at,
	}
}

// BatchResult summarises a SendBatch call.
type BatchResult struct {
	TotalSent   int                        `json:"total_sent"`
	TotalFailed int                        `json:"total_failed"`
	Results     map[string]*DispatchResult `json:"results"` // keyed by request id
}
