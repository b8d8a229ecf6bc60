package model

// AttemptStatus is the state of one flash attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "PENDING"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSucceeded  AttemptStatus = "SUCCEEDED"
	AttemptFailed     AttemptStatus = "FAILED"
)

// FlashAttempt records one try of writing the artifact to the device.
type FlashAttempt struct {
	Number     int           `json:"number" yaml:"number"`
	BackupPath string        `json:"backup_path" yaml:"backup_path"`
	Status     AttemptStatus `json:"status" yaml:"status"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// FlashOutcome is the result of a flash operation.
type FlashOutcome struct {
	Artifact   string         `json:"artifact" yaml:"artifact"`
	Succeeded  bool           `json:"succeeded" yaml:"succeeded"`
	BackupPath string         `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	Restored   bool           `json:"restored" yaml:"restored"`
	Attempts   []FlashAttempt `json:"attempts" yaml:"attempts"`
}
