package httpapi

import (
	"errors"
	"net/http"

	"rollcall/internal/attendance"
)

// statusFor maps engine rejections onto HTTP statuses. Storage faults are
// retryable and surface as 503.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrNoActiveCode):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrNotAuthorized),
		errors.Is(err, attendance.ErrNotEnrolled):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, attendance.ErrAlreadyCheckedIn),
		errors.Is(err, attendance.ErrAttendanceDisabled),
		errors.Is(err, attendance.ErrRosterIntegrity):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrCodeMismatch),
		errors.Is(err, attendance.ErrInvalidExpiration):
		return http.StatusUnprocessableEntity
	}
	var storage *attendance.StorageError
	if errors.As(err, &storage) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// rejectionReason names the rejection for metrics labels; empty for
// non-taxonomy errors.
func rejectionReason(err error) string {
	for reason, target := range map[string]error{
		"no_active_code":      attendance.ErrNoActiveCode,
		"code_expired":        attendance.ErrCodeExpired,
		"code_mismatch":       attendance.ErrCodeMismatch,
		"already_checked_in":  attendance.ErrAlreadyCheckedIn,
		"not_enrolled":        attendance.ErrNotEnrolled,
		"attendance_disabled": attendance.ErrAttendanceDisabled,
		"session_not_found":   attendance.ErrSessionNotFound,
	} {
		if errors.Is(err, target) {
			return reason
		}
	}
	return ""
}
