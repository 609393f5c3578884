package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Tier groups attempts by why they were made.
type Tier string

const (
	TierInApp     Tier = "in_app"
	TierPreferred Tier = "preferred"
	TierEmergency Tier = "emergency"
)

// TierOutcome summarises the attempts of one tier. Success means at least one
// attempt in the tier was delivered, so a tier with no attempts never succeeds.
type TierOutcome struct {
	Required  bool `json:"required"`
	Attempts  int  `json:"attempts"`
	Succeeded int  `json:"succeeded"`
	Success   bool `json:"success"`
}

// Request describes one dispatch. Emergency is only sent when Severity is
// critical; Preference may be nil when the subject never configured one.
type Request struct {
	SubjectID  string
	AlertID    string
	Severity   model.Severity
	Message    Message
	Emergency  Message
	Preference *model.NotificationPreference
	Contacts   []model.EmergencyContact
}

// Result holds every attempt made for a request, in plan order.
type Result struct {
	Attempts []model.NotificationAttempt `json:"attempts"`
	Tiers    map[Tier]TierOutcome        `json:"tiers"`
}

// Delivered reports whether any attempt succeeded.
func (r Result) Delivered() bool {
	for _, a := range r.Attempts {
		if a.Success {
			return true
		}
	}
	return false
}

type delivery struct {
	tier     Tier
	channel  model.Channel
	target   string
	audience model.Audience
	msg      Message
}

// Dispatcher fans a notification out across channels and audiences. Attempts
// run concurrently, each bounded by its own timeout, and are never retried.
type Dispatcher struct {
	registry *Registry
	log      AttemptLog
	timeout  time.Duration
	quiet    model.QuietHours
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A non-positive timeout means DefaultTimeout.
// log may be nil, in which case attempts are not persisted.
func NewDispatcher(registry *Registry, log AttemptLog, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		registry: registry,
		log:      log,
		timeout:  timeout,
		loc:      time.UTC,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// SetClock replaces the wall clock used for quiet hours and attempt timestamps.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// SetDefaultQuietHours sets the quiet hours used for subjects without their own.
func (d *Dispatcher) SetDefaultQuietHours(q model.QuietHours) {
	d.quiet = q
}

// SetLocation sets the time zone quiet hours are evaluated in.
func (d *Dispatcher) SetLocation(loc *time.Location) {
	if loc != nil {
		d.loc = loc
	}
}

// Dispatch delivers req and returns every attempt. Delivery failures are
// recorded on the attempts, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	now := d.now()
	plan := d.plan(req, now)

	attempts := make([]model.NotificationAttempt, len(plan))
	var wg sync.WaitGroup
	for i, p := range plan {
		wg.Add(1)
		go func(i int, p delivery) {
			defer wg.Done()
			attempts[i] = d.attempt(ctx, req, p)
		}(i, p)
	}
	wg.Wait()

	for i := range attempts {
		if d.log == nil {
			break
		}
		// Audit failures never undo a delivery that already happened.
		if err := d.log.AppendNotificationAttempt(context.WithoutCancel(ctx), &attempts[i]); err != nil {
			d.logger.Error("failed to log notification attempt",
				"subject", req.SubjectID,
				"channel", attempts[i].Channel,
				"error", err,
			)
		}
	}

	return Result{Attempts: attempts, Tiers: summarise(req, plan, attempts, d.quietFor(req).Contains(now.In(d.loc)))}
}

func (d *Dispatcher) plan(req Request, now time.Time) []delivery {
	msg := req.Message
	msg.SubjectID = req.SubjectID
	msg.AlertID = req.AlertID
	msg.Severity = req.Severity

	plan := []delivery{{
		tier:     TierInApp,
		channel:  model.ChannelInApp,
		target:   req.SubjectID,
		audience: model.AudienceSubject,
		msg:      msg,
	}}

	if req.Severity >= model.SeverityWarning && req.Preference != nil &&
		!d.quietFor(req).Contains(now.In(d.loc)) {
		pref := req.Preference
		if pref.EmailEnabled && pref.Email != "" {
			plan = append(plan, delivery{TierPreferred, model.ChannelEmail, pref.Email, model.AudienceSubject, msg})
		}
		if pref.SMSEnabled && pref.Phone != "" {
			plan = append(plan, delivery{TierPreferred, model.ChannelSMS, pref.Phone, model.AudienceSubject, msg})
		}
	}

	if req.Severity >= model.SeverityCritical {
		urgent := req.Emergency
		urgent.SubjectID = req.SubjectID
		urgent.AlertID = req.AlertID
		urgent.Severity = req.Severity
		urgent.Urgent = true
		for _, c := range req.Contacts {
			if c.Email != "" {
				plan = append(plan, delivery{TierEmergency, model.ChannelEmail, c.Email, model.AudienceEmergencyContact, urgent})
			}
			if c.Phone != "" {
				plan = append(plan, delivery{TierEmergency, model.ChannelSMS, c.Phone, model.AudienceEmergencyContact, urgent})
			}
		}
	}
	return plan
}

func (d *Dispatcher) quietFor(req Request) model.QuietHours {
	if req.Preference != nil && req.Preference.QuietHours.Enabled() {
		return req.Preference.QuietHours
	}
	return d.quiet
}

func (d *Dispatcher) attempt(ctx context.Context, req Request, p delivery) model.NotificationAttempt {
	a := model.NotificationAttempt{
		ID:        uuid.New().String(),
		SubjectID: req.SubjectID,
		AlertID:   req.AlertID,
		Channel:   p.channel,
		Target:    p.target,
		Audience:  p.audience,
	}

	err := d.send(ctx, p)
	a.Timestamp = d.now()
	if err != nil {
		a.Error = err.Error()
		d.logger.Warn("notification attempt failed",
			"subject", req.SubjectID,
			"channel", p.channel,
			"audience", p.audience,
			"error", err,
		)
		return a
	}
	a.Success = true
	return a
}

func (d *Dispatcher) send(ctx context.Context, p delivery) error {
	sender, err := d.registry.Get(p.channel)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- sender.Send(attemptCtx, p.target, p.msg) }()

	select {
	case err = <-errCh:
	case <-attemptCtx.Done():
		err = attemptCtx.Err()
	}
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("delivery timed out after %s: %w", d.timeout, err)
	}
	return err
}

func summarise(req Request, plan []delivery, attempts []model.NotificationAttempt, quiet bool) map[Tier]TierOutcome {
	tiers := map[Tier]TierOutcome{
		TierInApp:     {Required: true},
		TierPreferred: {Required: req.Severity >= model.SeverityWarning && !quiet},
		TierEmergency: {Required: req.Severity >= model.SeverityCritical},
	}
	for i, p := range plan {
		t := tiers[p.tier]
		t.Attempts++
		if attempts[i].Success {
			t.Succeeded++
		}
		t.Success = t.Succeeded > 0
		tiers[p.tier] = t
	}
	return tiers
}
