package domain

// IntakeRequest is an inbound broadcast submission before normalization.
// Timestamps travel as ISO strings; enums are free-form and normalized with
// documented defaults.
type IntakeRequest struct {
	Content        string   `json:"content"`
	Kind           string   `json:"kind"`
	Priority       string   `json:"priority"`
	BrokerName     string   `json:"broker_name"`
	BrokerContact  string   `json:"broker_contact"`
	Tags           []string `json:"tags"`
	Targets        []string `json:"targets"`
	ScheduleMode   string   `json:"schedule_mode"`
	FirstPostAtIso string   `json:"first_post_at_iso"`
	RepeatCount    int      `json:"repeat_count"`
	Source         string   `json:"source"`
	SourceRef      string   `json:"source_ref"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// DispatchRequest forces a dispatch cycle outside the periodic loop.
// NowIso pins the cycle clock for deterministic rehearsal.
type DispatchRequest struct {
	Limit  int    `json:"limit"`
	DryRun *bool  `json:"dry_run"`
	NowIso string `json:"now_iso"`
}

// RequeueRequest puts one failed item back in line, by default immediately.
type RequeueRequest struct {
	NextPostAtIso string `json:"next_post_at_iso"`
}
