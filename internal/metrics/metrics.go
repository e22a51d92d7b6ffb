// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsTotal counts successful check-ins by resulting status.
	CheckinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkins_total",
		Help: "Successful check-ins by status.",
	}, []string{"status"})

	// CheckinRejections counts rejected check-ins by reason.
	CheckinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkin_rejections_total",
		Help: "Rejected check-ins by reason.",
	}, []string{"reason"})

	// CodesIssued counts attendance codes created through the create
	// endpoint.
	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_codes_issued_total",
		Help: "Attendance codes issued.",
	})

	// CodesSwept counts active codes the worker sweep deactivated after
	// their expiry passed.
	CodesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_codes_swept_total",
		Help: "Expired codes deactivated by the worker sweep.",
	})
)
