package ritualz

import (
	"context"

	"github.com/codeGROOVE-dev/ritualz/pkg/store"
)

// SetLifeContext stores whether the user has kids or works shifts.
func (p *Planner) SetLifeContext(ctx context.Context, userID string, hasKids, shiftWorker bool) error {
	return p.store.SetLifeContext(ctx, userID, hasKids, shiftWorker)
}

// PlanTonight creates or replaces the user's wind-down plan for plan.Date.
func (p *Planner) PlanTonight(ctx context.Context, plan store.EveningPlan) (*store.EveningPlan, error) {
	saved, err := p.store.SavePlan(ctx, plan)
	if err != nil {
		return nil, err
	}
	p.logger.Info("evening plan saved", "user_id", saved.UserID, "plan_id", saved.ID, "date", saved.Date, "started_now", saved.StartedNow)
	return saved, nil
}

// PlanEvent records a wind-down action (done, snooze or skip) on a plan the
// user owns.
func (p *Planner) PlanEvent(ctx context.Context, userID, planID, action, reason string) error {
	if err := p.store.ApplyPlanAction(ctx, userID, planID, action, reason); err != nil {
		return err
	}
	p.logger.Debug("plan event applied", "user_id", userID, "plan_id", planID, "action", action)
	return nil
}

// MorningCheckin stores the night's rating and closes the matching evening
// plan. It returns the date of the closed plan, or "" when none matched.
func (p *Planner) MorningCheckin(ctx context.Context, c store.Checkin, completedEvening string) (string, error) {
	closed, err := p.store.SaveCheckin(ctx, c, completedEvening)
	if err != nil {
		return "", err
	}
	p.logger.Info("morning check-in saved", "user_id", c.UserID, "date", c.Date, "closed_evening_for", closed)
	return closed, nil
}
