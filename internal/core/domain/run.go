package domain

import "time"

// RecoveryRun is the ledger record of one orchestration run.
type RecoveryRun struct {
	ID            string
	TaskName      string
	WorkflowName  string
	RecoveryName  string
	State         string
	Team          string
	SiteWhitelist []string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
