package pagepulse

import "errors"

// ErrAlreadyRunning is returned when a trigger arrives while a run is
// already in flight. Triggers do not queue: the caller retries after the
// current run settles.
var ErrAlreadyRunning = errors.New("a run is already in flight")
