package update

import "errors"

// ErrRunInProgress is returned when a run is requested while another one
// holds the run lock.
var ErrRunInProgress = errors.New("an update run is already in progress")
