package booking

import "errors"

var (
	ErrPackageRequired   = errors.New("package_id is required")
	ErrEmailRequired     = errors.New("email is required")
	ErrTravelersRequired = errors.New("travelers must be at least 1")
)
