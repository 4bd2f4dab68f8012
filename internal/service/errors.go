package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrorKind groups domain errors by how a caller should react to them.
type ErrorKind int

const (
	// KindInfrastructure covers store failures; the only retryable kind.
	KindInfrastructure ErrorKind = iota
	KindValidation
	KindConflict
	KindState
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	default:
		return "infrastructure"
	}
}

// Error is a typed domain error. Sentinels below are compared with errors.Is.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation
var (
	ErrInvalidRequest      = newError(KindValidation, "invalid_request", "invalid request")
	ErrInvalidDateRange    = newError(KindValidation, "invalid_date_range", "range start must be before range end")
	ErrInvalidTimezone     = newError(KindValidation, "invalid_timezone", "unknown timezone")
	ErrNoAttendingChildren = newError(KindValidation, "no_attending_children", "at least one child must attend")
	ErrInvalidSlot         = newError(KindValidation, "invalid_slot", "slot is not on the lesson grid")
	ErrInvalidMonth        = newError(KindValidation, "invalid_month", "month must be YYYY-MM")
)

// Conflict
var (
	ErrSlotUnavailable            = newError(KindConflict, "slot_unavailable", "slot is no longer available")
	ErrDoubleBooking              = newError(KindConflict, "double_booking", "customer already has a lesson at this time")
	ErrAlreadyRebooked            = newError(KindConflict, "already_rebooked", "lesson has already been rebooked")
	ErrOverlappingScheduleVersion = newError(KindConflict, "overlapping_schedule_version", "schedule version overlaps an existing one")
	ErrScheduleVersionInUse       = newError(KindConflict, "schedule_version_in_use", "schedule version has lessons in its range")
	ErrAbsenceExists              = newError(KindConflict, "absence_exists", "absence already registered")
	ErrDuplicateClassCode         = newError(KindConflict, "duplicate_class_code", "lesson with this class code already exists")
)

// State
var (
	ErrRebookWindowExpired  = newError(KindState, "rebook_window_expired", "rebooking window has expired")
	ErrInvalidTransition    = newError(KindState, "invalid_transition", "transition not allowed from current status")
	ErrLessonNotStarted     = newError(KindState, "lesson_not_started", "lesson has not started yet")
	ErrLessonAlreadyStarted = newError(KindState, "lesson_already_started", "lesson has already started")
	ErrEntitlementExceeded  = newError(KindState, "entitlement_exceeded", "weekly lesson entitlement exceeded")
	ErrNoActiveSubscription = newError(KindState, "no_active_subscription", "customer has no active subscription")
	ErrNotFreeTrial         = newError(KindState, "not_free_trial", "lesson is not a free trial")
	ErrNotLessonOwner       = newError(KindState, "not_lesson_owner", "lesson belongs to another customer")
)

// Not found
var (
	ErrLessonNotFound          = newError(KindNotFound, "lesson_not_found", "lesson not found")
	ErrScheduleVersionNotFound = newError(KindNotFound, "schedule_version_not_found", "schedule version not found")
	ErrAbsenceNotFound         = newError(KindNotFound, "absence_not_found", "absence not found")
	ErrCommitmentNotFound      = newError(KindNotFound, "commitment_not_found", "recurring commitment not found")
	ErrSubscriptionNotFound    = newError(KindNotFound, "subscription_not_found", "subscription not found")
	ErrEventTypeNotFound       = newError(KindNotFound, "event_type_not_found", "event type not found")
	ErrCalendarDayNotFound     = newError(KindNotFound, "calendar_day_not_found", "calendar day not found")
)

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsRetryable reports whether the caller may retry the operation with backoff.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindInfrastructure
}

var validate = validator.New()

// validateRequest проверяет теги validate у запроса до обращения к хранилищу
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	return nil
}
