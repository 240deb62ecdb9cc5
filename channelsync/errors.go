package channelsync

import (
	"errors"
	"fmt"
)

// Terminal errors are validation failures: retrying cannot fix them, so the
// event is marked failed immediately with an actionable message instead of
// burning retry budget.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func Terminalf(format string, args ...interface{}) error {
	return &terminalError{err: fmt.Errorf(format, args...)}
}

func IsTerminal(err error) bool {
	var te *terminalError
	if errors.As(err, &te) {
		return true
	}
	var apiErr *ChannelAPIError
	if errors.As(err, &apiErr) {
		return !apiErr.Retryable()
	}
	return false
}

// MappingError reports a missing room/room-type mapping. The event is skipped
// loudly so the operator can create the mapping and replay it.
type MappingError struct {
	MappingType string
	Channel     string
	Id          string
	External    bool
}

func (e *MappingError) Error() string {
	side := "internal"
	if e.External {
		side = "external"
	}
	return fmt.Sprintf("no active %s mapping for %s id %q on channel %s; map the entity and replay the event",
		e.MappingType, side, e.Id, e.Channel)
}
