package outreach

import "errors"

// Error kinds shared by the draft manager and the dispatcher. NotFound,
// AlreadySent, NoDraft and InvalidTime are returned to the caller as is and are
// never retried. DeliveryFailure is also recorded on the lead. ClaimLost only
// tells a dispatcher that another worker won the lead.
var (
	ErrNotFound        = errors.New("lead not found")
	ErrAlreadySent     = errors.New("outreach already sent")
	ErrNoDraft         = errors.New("lead has no outreach draft")
	ErrInvalidTime     = errors.New("scheduled time must be in the future")
	ErrDeliveryFailure = errors.New("delivery failed")
	ErrClaimLost       = errors.New("send claimed by another worker")
)

// ErrConflict is returned when a conditional write kept losing to concurrent
// writers and the lead state never settled.
var ErrConflict = errors.New("lead changed concurrently")

// ErrInvalidInput wraps request validation failures.
var ErrInvalidInput = errors.New("invalid input")
