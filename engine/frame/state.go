package frame

import (
	"errors"
	"fmt"
)

// ErrBuildInProgress is returned when a build starts while another one is still running.
var ErrBuildInProgress = errors.New("frame build already in progress")

// State is the build lifecycle of a Builder: Idle until the first build, Building while one
// runs and Ready once a frame has been produced.
type State int32

const (
	StateIdle State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
