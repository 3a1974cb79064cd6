package sync

import "errors"

// ErrRunActive is returned when a sync is triggered while another run is in
// flight. It is fatal only to the new invocation.
var ErrRunActive = errors.New("sync run already active")
