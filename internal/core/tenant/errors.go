package tenant

import "errors"

// ErrNoTenant is returned by callers that refuse to proceed without a tenant.
var ErrNoTenant = errors.New("no tenant resolved for request")
