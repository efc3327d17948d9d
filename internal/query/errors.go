package query

import (
	"errors"
	"fmt"
)

// Local error codes. Positive codes come from the peer's status line;
// negative codes are produced on this side of the wire.
const (
	CodeResultNotFound  = -1
	CodeChannelNotFound = -2
	CodeDatabaseID      = -3
	CodeStatusNotFound  = -5
	CodeParse           = -6

	// StatusNotConnected is the peer's "not currently placed anywhere"
	// status. It is a control signal for the monitor, not a failure.
	StatusNotConnected = 1794
)

// Error carries a numeric result code plus message, covering both
// peer-reported status lines and locally raised protocol conditions.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

func statusNotFoundError(content string) *Error {
	return &Error{Code: CodeStatusNotFound, Message: fmt.Sprintf("no status line in reply %q", content)}
}

func resultNotFoundError(payload string) *Error {
	return &Error{Code: CodeResultNotFound, Message: fmt.Sprintf("expected result rows for %q but none found", payload)}
}

func channelNotFoundError(name string) *Error {
	return &Error{Code: CodeChannelNotFound, Message: fmt.Sprintf("channel %q not found", name)}
}

func databaseIDError() *Error {
	return &Error{Code: CodeDatabaseID, Message: "can't resolve own database id"}
}

func parseError(key, raw string, err error) *Error {
	return &Error{Code: CodeParse, Message: fmt.Sprintf("bad record field %s=%q: %v", key, raw, err)}
}

// Code extracts the query error code, or 0 when err is not a query error.
func Code(err error) int {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return 0
}
