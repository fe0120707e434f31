package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/metrics"
	"github.com/ds124wfegd/ems-booking/internal/service"

	"github.com/sirupsen/logrus"
)

// SweepReport summarizes one reaper run.
type SweepReport struct {
	Scanned         int `json:"scanned"`
	Expired         int `json:"expired"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
	WaitlistExpired int `json:"waitlist_expired"`
}

// Reaper cancels bookings whose payment window has passed and closes stale
// waitlist notifications. Each booking is expired in its own transaction,
// so one failure never aborts the batch.
type Reaper struct {
	bookings  service.BookingService
	waitlist  service.WaitlistService
	alerter   service.Alerter
	batchSize int
}

func NewReaper(bookings service.BookingService, waitlist service.WaitlistService, alerter service.Alerter, batchSize int) *Reaper {
	if batchSize < 1 {
		batchSize = 100
	}
	if alerter == nil {
		alerter = service.NoopAlerter{}
	}
	return &Reaper{
		bookings:  bookings,
		waitlist:  waitlist,
		alerter:   alerter,
		batchSize: batchSize,
	}
}

// Run adapts Sweep to the scheduler's job signature.
func (r *Reaper) Run(ctx context.Context) {
	r.Sweep(ctx)
}

func (r *Reaper) Sweep(ctx context.Context) SweepReport {
	start := time.Now()
	logrus.Info("Starting expired bookings sweep")

	var report SweepReport
	var cursor *entity.BookingCursor

	for {
		if ctx.Err() != nil {
			logrus.Info("Sweep interrupted by context cancellation")
			break
		}

		page, err := r.bookings.FindExpired(ctx, cursor, r.batchSize)
		if err != nil {
			logrus.WithError(err).Error("Failed to find expired bookings")
			report.Failed++
			break
		}

		// Failed bookings stay pending, so the next page starts after the
		// last one seen rather than at the head again.
		for _, b := range page {
			cursor = b.Cursor()
			report.Scanned++

			expired, err := r.bookings.ExpireBooking(ctx, b.ID)
			switch {
			case err != nil:
				report.Failed++
				logrus.WithError(err).WithField("booking_id", b.ID).Error("Failed to expire booking")
			case expired:
				report.Expired++
			default:
				report.Skipped++
			}
		}

		if len(page) < r.batchSize {
			break
		}
	}

	waitlistExpired, err := r.waitlist.ExpireNotified(ctx)
	if err != nil {
		report.Failed++
		logrus.WithError(err).Error("Failed to expire waitlist notifications")
	}
	report.WaitlistExpired = waitlistExpired

	metrics.TrackReaper("expired", report.Expired)
	metrics.TrackReaper("skipped", report.Skipped)
	metrics.TrackReaper("failed", report.Failed)
	metrics.ObserveReaperSweep(time.Since(start))

	logrus.WithFields(logrus.Fields{
		"scanned":          report.Scanned,
		"expired":          report.Expired,
		"skipped":          report.Skipped,
		"failed":           report.Failed,
		"waitlist_expired": report.WaitlistExpired,
		"duration":         time.Since(start).String(),
	}).Info("Expired bookings sweep completed")

	if report.Failed > 0 {
		text := fmt.Sprintf("Reaper sweep finished with %d failures (scanned %d, expired %d)",
			report.Failed, report.Scanned, report.Expired)
		if err := r.alerter.Alert(ctx, text); err != nil {
			logrus.WithError(err).Error("Failed to send reaper alert")
		}
	}

	return report
}
