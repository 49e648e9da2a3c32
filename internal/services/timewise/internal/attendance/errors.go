package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyCheckedIn      = errors.New("already checked in today")
	ErrOutOfGeofence         = errors.New("outside of the work location geofence")
	ErrNoWorkLocation        = errors.New("no work location configured")
	ErrNotClockedIn          = errors.New("not clocked in today")
	ErrAlreadyCheckedOut     = errors.New("already checked out today")
	ErrCheckOutBeforeCheckIn = errors.New("check-out is not after check-in")
	ErrOperationInProgress   = errors.New("attendance operation in progress")
)

// OutOfGeofenceError reports how far the device was from the work location.
type OutOfGeofenceError struct {
	Distance float64
	Radius   float64
}

func (e *OutOfGeofenceError) Error() string {
	return fmt.Sprintf("%s: %.0f m away, limit %.0f m", ErrOutOfGeofence, e.Distance, e.Radius)
}

func (e *OutOfGeofenceError) Is(target error) bool {
	return target == ErrOutOfGeofence
}
