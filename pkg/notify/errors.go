package notify

import "errors"

// ErrAlreadyNotified is returned when a summary is handed in a second time.
var ErrAlreadyNotified = errors.New("run summary already notified")
