package store

import (
	"context"
	"errors"
	"testing"

	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

func samplePlan(userID, date string) EveningPlan {
	return EveningPlan{
		UserID:            userID,
		Date:              date,
		TriggerTimeAnchor: "after dinner",
		TriggerPlace:      "on_bed",
		TriggerMood:       "wired",
		ShieldType:        "phone in drawer",
		ShieldTime:        "21:30",
		DivertRitual:      "stretching",
	}
}

func TestProfileUpsertKeepsLifeContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Profile(ctx, "u1"); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("Profile on empty store: err = %v; want ErrNoProfile", err)
	}
	if err := s.SetLifeContext(ctx, "u1", true, false); err != nil {
		t.Fatalf("SetLifeContext: %v", err)
	}
	if err := s.UpsertProfile(ctx, Profile{UserID: "u1", PreferredName: "Sam", Goal: "Wake sharper", BedtimeWindow: "22:00–23:00"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if err := s.UpsertProfile(ctx, Profile{UserID: "u1", PreferredName: "Sam", Goal: "Fall asleep faster"}); err != nil {
		t.Fatalf("second UpsertProfile: %v", err)
	}

	p, err := s.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Goal != "Fall asleep faster" || p.PreferredName != "Sam" || !p.HasKids || p.ShiftWorker {
		t.Errorf("profile = %+v", p)
	}
}

func TestSaveAndLatestTimeline(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestTimeline(ctx, "u1"); !errors.Is(err, ErrNoTimeline) {
		t.Fatalf("LatestTimeline on empty store: err = %v; want ErrNoTimeline", err)
	}

	tl := timeline.Timeline{
		WakeTime:      "06:30",
		BedtimeTarget: "23:00",
		BedtimeWindow: "22:00–23:00",
		Anchors:       []timeline.Anchor{{Name: "Dinner", Time: "19:00", Confidence: timeline.Conf(0.9)}},
	}
	saved, err := s.SaveTimeline(ctx, "u1", "Fall asleep faster", "22:00–23:00", tl)
	if err != nil {
		t.Fatalf("SaveTimeline: %v", err)
	}

	got, err := s.LatestTimeline(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestTimeline: %v", err)
	}
	data := got.Data.Data()
	if got.ID != saved.ID || got.Goal != "Fall asleep faster" || data.WakeTime != "06:30" || len(data.Anchors) != 1 {
		t.Errorf("LatestTimeline = %+v / %+v", got, data)
	}
	if c := data.Anchors[0].Confidence; c == nil || *c != 0.9 {
		t.Errorf("anchor confidence = %v", c)
	}
}

func TestValidatePlan(t *testing.T) {
	good := samplePlan("u1", "2026-03-01")
	if err := ValidatePlan(&good); err != nil {
		t.Fatalf("ValidatePlan(good) = %v", err)
	}

	tests := map[string]func(p *EveningPlan){
		"no user":        func(p *EveningPlan) { p.UserID = "" },
		"bad date":       func(p *EveningPlan) { p.Date = "03/01/2026" },
		"short anchor":   func(p *EveningPlan) { p.TriggerTimeAnchor = "x" },
		"long anchor":    func(p *EveningPlan) { p.TriggerTimeAnchor = "a very long trigger anchor text here" },
		"unknown place":  func(p *EveningPlan) { p.TriggerPlace = "kitchen" },
		"unknown mood":   func(p *EveningPlan) { p.TriggerMood = "happy" },
		"missing shield": func(p *EveningPlan) { p.ShieldType = "" },
		"bad time":       func(p *EveningPlan) { p.ShieldTime = "9:30" },
		"missing divert": func(p *EveningPlan) { p.DivertRitual = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := samplePlan("u1", "2026-03-01")
			mutate(&p)
			if err := ValidatePlan(&p); !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("err = %v; want ErrInvalidPlan", err)
			}
		})
	}
}

func TestSavePlanUpsertsPerDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SavePlan(ctx, samplePlan("u1", "2026-03-01"))
	if err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	if first.ID == "" || first.ArmedAt != nil {
		t.Errorf("first plan = %+v", first)
	}

	changed := samplePlan("u1", "2026-03-01")
	changed.DivertRitual = "reading"
	changed.StartedNow = true
	second, err := s.SavePlan(ctx, changed)
	if err != nil {
		t.Fatalf("second SavePlan: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("plan id changed on upsert: %s -> %s", first.ID, second.ID)
	}
	if second.DivertRitual != "reading" || !second.StartedNow || second.ArmedAt == nil {
		t.Errorf("second plan = %+v", second)
	}

	if _, err := s.SavePlan(ctx, samplePlan("u1", "yesterday")); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("bad date: err = %v; want ErrInvalidPlan", err)
	}
}

func TestApplyPlanAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	plan, err := s.SavePlan(ctx, samplePlan("u1", "2026-03-01"))
	if err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	if err := s.ApplyPlanAction(ctx, "u1", plan.ID, ActionSnooze, ""); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if got, _ := s.Plan(ctx, "u1", plan.ID); got.CompletedEvening != "" {
		t.Errorf("snooze changed the plan: %+v", got)
	}

	if err := s.ApplyPlanAction(ctx, "u1", plan.ID, ActionSkip, ""); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("skip without reason: err = %v; want ErrInvalidAction", err)
	}
	if err := s.ApplyPlanAction(ctx, "u1", plan.ID, ActionSkip, "friends over"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	got, err := s.Plan(ctx, "u1", plan.ID)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got.CompletedEvening != EveningSkipped || got.SkipReason != "friends over" {
		t.Errorf("skipped plan = %+v", got)
	}

	if err := s.ApplyPlanAction(ctx, "u1", plan.ID, ActionDone, ""); err != nil {
		t.Fatalf("done: %v", err)
	}
	if got, _ := s.Plan(ctx, "u1", plan.ID); got.CompletedEvening != EveningDone {
		t.Errorf("done plan = %+v", got)
	}

	if err := s.ApplyPlanAction(ctx, "u2", plan.ID, ActionDone, ""); !errors.Is(err, ErrNoPlan) {
		t.Errorf("other user: err = %v; want ErrNoPlan", err)
	}
	if err := s.ApplyPlanAction(ctx, "u1", "missing", ActionDone, ""); !errors.Is(err, ErrNoPlan) {
		t.Errorf("missing plan: err = %v; want ErrNoPlan", err)
	}
	if err := s.ApplyPlanAction(ctx, "u1", plan.ID, "shield_explode", ""); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("unknown action: err = %v; want ErrInvalidAction", err)
	}
}

func TestSaveCheckinClosesPlan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.SavePlan(ctx, samplePlan("u1", "2026-03-01")); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	tests := []struct {
		name      string
		date      string
		outcome   string
		rating    int
		wantClose string
	}{
		{"same day", "2026-03-01", EveningPartly, 3, "2026-03-01"},
		{"previous day", "2026-03-02", EveningDone, 4, "2026-03-01"},
		{"no plan nearby", "2026-03-10", EveningSkipped, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closed, err := s.SaveCheckin(ctx, Checkin{UserID: "u1", Date: tt.date, SleepRating: tt.rating}, tt.outcome)
			if err != nil {
				t.Fatalf("SaveCheckin: %v", err)
			}
			if closed != tt.wantClose {
				t.Errorf("closed = %q; want %q", closed, tt.wantClose)
			}
		})
	}

	var plan EveningPlan
	if err := s.db.Where("user_id = ? AND date = ?", "u1", "2026-03-01").First(&plan).Error; err != nil {
		t.Fatalf("loading plan: %v", err)
	}
	if plan.CompletedEvening != EveningDone {
		t.Errorf("completed_evening = %q; want done", plan.CompletedEvening)
	}

	// A second check-in for the same date replaces the rating.
	if _, err := s.SaveCheckin(ctx, Checkin{UserID: "u1", Date: "2026-03-10", SleepRating: 5}, EveningDone); err != nil {
		t.Fatalf("repeat SaveCheckin: %v", err)
	}
	var checkins []Checkin
	if err := s.db.Where("user_id = ? AND date = ?", "u1", "2026-03-10").Find(&checkins).Error; err != nil {
		t.Fatalf("loading check-ins: %v", err)
	}
	if len(checkins) != 1 || checkins[0].SleepRating != 5 {
		t.Errorf("check-ins = %+v", checkins)
	}
}

func TestSaveCheckinValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := map[string]struct {
		c       Checkin
		outcome string
	}{
		"rating low":      {Checkin{UserID: "u1", Date: "2026-03-01", SleepRating: 0}, EveningDone},
		"rating high":     {Checkin{UserID: "u1", Date: "2026-03-01", SleepRating: 6}, EveningDone},
		"bad outcome":     {Checkin{UserID: "u1", Date: "2026-03-01", SleepRating: 3}, "mostly"},
		"bad date":        {Checkin{UserID: "u1", Date: "2026-13-01", SleepRating: 3}, EveningDone},
		"missing user id": {Checkin{Date: "2026-03-01", SleepRating: 3}, EveningDone},
	}
	for name, tt := range tests {
		if _, err := s.SaveCheckin(ctx, tt.c, tt.outcome); !errors.Is(err, ErrInvalidCheckin) {
			t.Errorf("%s: err = %v; want ErrInvalidCheckin", name, err)
		}
	}
}

func TestNilStoreJournal(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if err := s.UpsertProfile(ctx, Profile{}); !errors.Is(err, ErrNoStore) {
		t.Errorf("UpsertProfile err = %v", err)
	}
	if _, err := s.LatestTimeline(ctx, "u"); !errors.Is(err, ErrNoStore) {
		t.Errorf("LatestTimeline err = %v", err)
	}
	if _, err := s.SavePlan(ctx, samplePlan("u", "2026-03-01")); !errors.Is(err, ErrNoStore) {
		t.Errorf("SavePlan err = %v", err)
	}
	if _, err := s.SaveCheckin(ctx, Checkin{}, EveningDone); !errors.Is(err, ErrNoStore) {
		t.Errorf("SaveCheckin err = %v", err)
	}
}
