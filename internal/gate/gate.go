// Package gate validates tenant subscription state before a connection
// handle is released. Checks are pure functions over a record snapshot; the
// gate never mutates state, so it is safe under concurrent readers. Status
// corrections happen in the lifecycle sweep, not here.
package gate

import (
	"fmt"
	"time"

	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
)

// Reason identifies why access was denied.
type Reason string

const (
	ReasonTrialExpired       Reason = "TRIAL_EXPIRED"
	ReasonExpired            Reason = "EXPIRED"
	ReasonSuspended          Reason = "SUSPENDED"
	ReasonCancelled          Reason = "CANCELLED"
	ReasonUsageLimitExceeded Reason = "USAGE_LIMIT_EXCEEDED"
	ReasonUnknownStatus      Reason = "UNKNOWN_STATUS"
)

// AccessDeniedError carries a caller-displayable denial reason; these
// messages are shown directly to end users attempting to sign in.
type AccessDeniedError struct {
	Reason  Reason
	Message string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("tenant access denied: %s", e.Reason)
}

// Result is the outcome of a passing gate check.
type Result struct {
	// Warning is set for tenants in a grace period; callers may surface it.
	Warning string
}

var denialMessages = map[Reason]string{
	ReasonTrialExpired:       "Your free trial has ended. Please subscribe to continue using your account.",
	ReasonExpired:            "Your subscription has expired. Please renew to regain access.",
	ReasonSuspended:          "Your account is suspended due to unpaid invoices. Please contact billing.",
	ReasonCancelled:          "This account has been cancelled and can no longer be accessed.",
	ReasonUsageLimitExceeded: "Your storage limit has been exceeded. Please upgrade your plan or free up space.",
	ReasonUnknownStatus:      "Your account is in an unknown state. Please contact support.",
}

func deny(reason Reason) error {
	return &AccessDeniedError{Reason: reason, Message: denialMessages[reason]}
}

// Check validates the tenant snapshot at the given instant.
//
// TRIAL tenants past their trial end are denied even though their stored
// status has not yet been corrected; the sweep fixes the row lazily.
// DATABASE-size and API overages never deny access (they degrade to billing
// overage); the storage hard cap is the only usage-based denial.
func Check(t *tenantdomain.Tenant, now time.Time) (Result, error) {
	switch t.Status {
	case tenantdomain.StatusTrial:
		if t.TrialEndsAt == nil || now.After(*t.TrialEndsAt) {
			return Result{}, deny(ReasonTrialExpired)
		}
		return Result{}, nil

	case tenantdomain.StatusActive:
		if t.StorageExceeded {
			return Result{}, deny(ReasonUsageLimitExceeded)
		}
		return Result{}, nil

	case tenantdomain.StatusPaymentDue:
		return Result{
			Warning: "Your payment is overdue. Please settle the outstanding invoice to avoid suspension.",
		}, nil

	case tenantdomain.StatusExpired:
		return Result{}, deny(ReasonExpired)

	case tenantdomain.StatusSuspended:
		return Result{}, deny(ReasonSuspended)

	case tenantdomain.StatusCancelled:
		return Result{}, deny(ReasonCancelled)

	default:
		return Result{}, deny(ReasonUnknownStatus)
	}
}
