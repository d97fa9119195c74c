package syncmsg

import "strconv"

// StatusCode is carried by rejections and errors. The values follow HTTP
// semantics except ConflictWithRetry.
type StatusCode int

const (
	OK                StatusCode = 200
	BadRequest        StatusCode = 400
	MethodNotAllowed  StatusCode = 405
	RequestTimeout    StatusCode = 408
	Conflict          StatusCode = 409
	ConflictWithRetry StatusCode = 419
	UpgradeRequired   StatusCode = 426
	TooManyRequests   StatusCode = 429
	ServerError       StatusCode = 500
)

// Valid reports whether s is part of the closed status enumeration.
func (s StatusCode) Valid() bool {
	switch s {
	case OK, BadRequest, MethodNotAllowed, RequestTimeout, Conflict,
		ConflictWithRetry, UpgradeRequired, TooManyRequests, ServerError:
		return true
	}
	return false
}

func (s StatusCode) String() string {
	switch s {
	case OK:
		return "OK"
	case BadRequest:
		return "BadRequest"
	case MethodNotAllowed:
		return "MethodNotAllowed"
	case RequestTimeout:
		return "RequestTimeout"
	case Conflict:
		return "Conflict"
	case ConflictWithRetry:
		return "ConflictWithRetry"
	case UpgradeRequired:
		return "UpgradeRequired"
	case TooManyRequests:
		return "TooManyRequests"
	case ServerError:
		return "ServerError"
	}
	return "StatusCode(" + strconv.Itoa(int(s)) + ")"
}
