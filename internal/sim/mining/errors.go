package mining

import "errors"

var (
	// ErrIndexInvalidated is a recoverable scan failure: the scanner's cache no longer
	// indexes the field correctly. Clear the cache and retry next cycle.
	ErrIndexInvalidated = errors.New("field index invalidated")

	ErrEntityGone   = errors.New("field entity gone")
	ErrAlreadyEmpty = errors.New("cell already empty")
	ErrNoYield      = errors.New("cell has no yield")
	ErrNoSpace      = errors.New("storage sink has no space")
)

// Rejection reasons surfaced to the station status sink.
const (
	ReasonMaxTargets        = "Maximum targets reached. Add more upgrades!"
	ReasonAlreadyTargeted   = "Mining position was already targeted"
	ReasonInsufficientPower = "Insufficient power for another target"
	ReasonOtherStation      = "Another station has this cell as a target"
	ReasonUserLimit         = "User defined maximum nanite limit reached"
)
