package reports

import (
	"time"

	"triage-platform/internal/queue"
)

// Payload is what a counselor submits when finishing a call.
type Payload struct {
	ClientName   string `json:"client_name" validate:"max=100"`
	ClientAge    *int   `json:"client_age,omitempty" validate:"omitempty,min=0,max=150"`
	ClientGender string `json:"client_gender,omitempty" validate:"omitempty,oneof=male female other"`
	Memo         string `json:"memo" validate:"required,max=10000"`
}

// Report is the persisted consultation record, one per queued intake
// (call id plus the time the call was received).
type Report struct {
	ID          string `json:"report_id" db:"id"`
	CallID      string `json:"call_id" db:"call_id"`
	CounselorID string `json:"counselor_id" db:"counselor_id"`
	Phone       string `json:"phone" db:"phone"`

	ClientName   string `json:"client_name,omitempty" db:"client_name"`
	ClientAge    *int   `json:"client_age,omitempty" db:"client_age"`
	ClientGender string `json:"client_gender,omitempty" db:"client_gender"`
	Memo         string `json:"memo" db:"memo"`

	RiskLevelRecorded queue.RiskLevel `json:"risk_level_recorded" db:"risk_level_recorded"`
	CallReceivedAt    time.Time       `json:"call_received_at" db:"call_received_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

type SearchField string

const (
	SearchByName  SearchField = "name"
	SearchByPhone SearchField = "phone"
)

// Search filters a counselor's reports. An empty Term matches everything.
// Limit caps the result; the service clamps it to MaxListLimit.
type Search struct {
	By    SearchField
	Term  string
	Limit int
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type SummaryRequest struct {
	CounselorID string    `json:"counselor_id"`
	Range       TimeRange `json:"range"`
}

type Summary struct {
	CounselorID string `json:"counselor_id"`

	TotalReports int `json:"total_reports"`
	HighRisk     int `json:"high_risk"`
	MediumRisk   int `json:"medium_risk"`
	LowRisk      int `json:"low_risk"`

	// AverageWaitSeconds is the mean time from intake to report filing.
	AverageWaitSeconds int `json:"average_wait_seconds"`
}
