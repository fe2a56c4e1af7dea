package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownIntent is returned when an inbound intent carries a tag the
// authority does not recognize.
var ErrUnknownIntent = errors.New("unknown intent tag")

// EncodeError reports an intent that failed pre-send validation. The intent
// is never transmitted; the caller learns synchronously.
type EncodeError struct {
	Intent string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("cannot encode %s: %s", e.Intent, e.Reason)
}
