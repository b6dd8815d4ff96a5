package domain

// Job status constants
const (
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
)

// LockStatusLocked is the only status a stored job lock carries
const LockStatusLocked = "locked"

// Outcome reasons produced by the batch worker itself
const (
	ReasonNotFound          = "not found"
	ReasonNoLongerMeetsRule = "no longer meets criteria"
)
