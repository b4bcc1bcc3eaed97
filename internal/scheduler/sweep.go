package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"go.uber.org/zap"
)

// SweepReport summarizes one daily sweep run. Counts only include rows this
// run actually transitioned; rows already moved by a concurrent run are
// skipped by the compare-and-set and not counted.
type SweepReport struct {
	TrialsExpired         int
	PaymentsMarkedOverdue int
	AccountsSuspended     int
	TenantsReviewed       int
	Errors                []error
}

// RunDailySweep walks the registry and applies every due lifecycle
// transition, then runs the usage review over tenants that still have
// access. One failing tenant never aborts the sweep; its error is
// accumulated into the report.
func (s *Scheduler) RunDailySweep(ctx context.Context) (*SweepReport, error) {
	now := s.clock.Now()
	report := &SweepReport{}

	s.expireTrials(ctx, now, report)
	s.markOverduePayments(ctx, now, report)
	s.suspendDelinquents(ctx, now, report)
	s.reviewUsage(ctx, report)

	if len(report.Errors) > 0 {
		return report, fmt.Errorf("sweep finished with %d errors: %w", len(report.Errors), errors.Join(report.Errors...))
	}
	return report, nil
}

func (s *Scheduler) expireTrials(ctx context.Context, now time.Time, report *SweepReport) {
	tenants, err := s.repo.ListByStatus(ctx, s.db, tenantdomain.StatusTrial)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}

	for _, t := range tenants {
		// Strictly past the end: at the exact instant the gate still admits,
		// so the sweep must not expire yet.
		if t.TrialEndsAt == nil || !now.After(*t.TrialEndsAt) {
			continue
		}
		moved, err := s.transition(ctx, &t, tenantdomain.StatusTrial, tenantdomain.StatusExpired, now)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if moved {
			report.TrialsExpired++
		}
	}
}

func (s *Scheduler) markOverduePayments(ctx context.Context, now time.Time, report *SweepReport) {
	tenants, err := s.repo.ListByStatus(ctx, s.db, tenantdomain.StatusActive)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}

	for _, t := range tenants {
		if t.NextPaymentDue == nil {
			continue
		}
		deadline := t.NextPaymentDue.AddDate(0, 0, s.cfg.GraceDays)
		if !now.After(deadline) {
			continue
		}
		moved, err := s.transition(ctx, &t, tenantdomain.StatusActive, tenantdomain.StatusPaymentDue, now)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if moved {
			report.PaymentsMarkedOverdue++
		}
	}
}

func (s *Scheduler) suspendDelinquents(ctx context.Context, now time.Time, report *SweepReport) {
	tenants, err := s.repo.ListByStatus(ctx, s.db, tenantdomain.StatusPaymentDue)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}

	for _, t := range tenants {
		if t.NextPaymentDue == nil {
			continue
		}
		deadline := t.NextPaymentDue.AddDate(0, 0, s.cfg.SuspendDays)
		if !now.After(deadline) {
			continue
		}
		moved, err := s.transition(ctx, &t, tenantdomain.StatusPaymentDue, tenantdomain.StatusSuspended, now)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if moved {
			report.AccountsSuspended++
		}
	}
}

// reviewUsage measures and evaluates tenants that can still reach their
// store. Statuses the gate denies are excluded up front.
func (s *Scheduler) reviewUsage(ctx context.Context, report *SweepReport) {
	statuses := []tenantdomain.SubscriptionStatus{
		tenantdomain.StatusTrial,
		tenantdomain.StatusActive,
		tenantdomain.StatusPaymentDue,
	}

	if s.reviewer == nil {
		return
	}

	for _, status := range statuses {
		tenants, err := s.repo.ListByStatus(ctx, s.db, status)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		for _, t := range tenants {
			if ctx.Err() != nil {
				report.Errors = append(report.Errors, ctx.Err())
				return
			}
			if err := s.reviewer.ReviewTenant(ctx, &t); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("review %s: %w", t.Slug, err))
				continue
			}
			report.TenantsReviewed++
		}
	}
}

func (s *Scheduler) transition(ctx context.Context, t *tenantdomain.Tenant, from, to tenantdomain.SubscriptionStatus, now time.Time) (bool, error) {
	moved, err := s.repo.TransitionStatus(ctx, s.db, t.ID, from, to, now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SweepFailures.Inc()
		}
		return false, fmt.Errorf("transition %s %s->%s: %w", t.Slug, from, to, err)
	}
	if !moved {
		return false, nil
	}

	s.registry.Invalidate(t.Slug)
	if s.metrics != nil {
		s.metrics.SweepTransitions.WithLabelValues(string(from) + "->" + string(to)).Inc()
	}
	s.log.Info("lifecycle transition applied",
		zap.String("slug", t.Slug),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return true, nil
}
