// Package poller checks on a fixed interval which tracked streamers are live and
// fires a live-action for each of them.
//
// A Poller owns the streamer registry, the Helix client and the action. Run is a
// single sequential loop: fetch live streams in one batched call, fire actions one
// by one, sleep for the interval, repeat until the context is canceled.
//
// Two trigger modes exist:
//   - every_poll: the action fires on every cycle while a streamer stays live.
//   - on_transition: the last-known live set is kept and the action fires only
//     when a streamer goes from offline to live.
//
// In both modes actions implementing OfflineAction are told when a streamer seen
// live in the previous cycle disappears.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/twitch-recorder/config"
	"github.com/onnwee/twitch-recorder/telemetry"
	"github.com/onnwee/twitch-recorder/twitchapi"
)

// DefaultInterval is used when no interval option is given.
const DefaultInterval = config.DefaultCheckInterval * time.Second

// StreamLister is the part of the Helix client the poller needs.
type StreamLister interface {
	GetLiveStreams(ctx context.Context, logins []string) ([]twitchapi.Stream, error)
}

// Trigger selects when the live-action fires.
type Trigger int

const (
	TriggerEveryPoll Trigger = iota
	TriggerOnTransition
)

func (t Trigger) String() string {
	if t == TriggerOnTransition {
		return config.TriggerOnTransition
	}
	return config.TriggerEveryPoll
}

// ParseTrigger parses the twitch.trigger config value. Empty means every_poll.
func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "", config.TriggerEveryPoll:
		return TriggerEveryPoll, nil
	case config.TriggerOnTransition:
		return TriggerOnTransition, nil
	default:
		return TriggerEveryPoll, fmt.Errorf("unknown trigger %q", s)
	}
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the sleep between poll cycles. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithAction replaces the default LogAction.
func WithAction(a Action) Option { return func(p *Poller) { p.action = a } }

// WithTrigger sets the trigger mode.
func WithTrigger(t Trigger) Option { return func(p *Poller) { p.trigger = t } }

// WithStopOnError makes Run return the first poll error instead of logging it and continuing.
func WithStopOnError(stop bool) Option { return func(p *Poller) { p.stopOnError = stop } }

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(p *Poller) { p.logger = l } }

// Poller polls Helix for the registry's streamers.
type Poller struct {
	client      StreamLister
	registry    *Registry
	interval    time.Duration
	action      Action
	trigger     Trigger
	stopOnError bool
	logger      *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu       sync.RWMutex
	live     map[string]bool // written only by Poll
	lastPoll time.Time
	lastErr  error
	cycles   int
}

// New returns a Poller for registry using client.
func New(client StreamLister, registry *Registry, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		registry: registry,
		interval: DefaultInterval,
		action:   LogAction{},
		logger:   slog.Default(),
		now:      time.Now,
		after:    time.After,
		live:     map[string]bool{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Poll runs one cycle. Poll must not be called concurrently with itself.
//
// Records for logins not in the registry are skipped. Action errors are logged and
// counted but do not fail the cycle; only a failed Helix call is returned, in which
// case the last-known live set is left untouched.
func (p *Poller) Poll(ctx context.Context) error {
	var err error
	telemetry.TimeFunc(telemetry.PollDuration, func() { err = p.poll(ctx) })
	return err
}

func (p *Poller) poll(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "poller", "poller.poll", attribute.Int("tracked", p.registry.Len()))
	defer span.End()

	telemetry.IncPolls()
	start := p.now()

	streams, err := p.client.GetLiveStreams(ctx, p.registry.Logins())
	if err != nil {
		telemetry.IncPollFailure(twitchapi.ClassifyError(err).String())
		telemetry.RecordError(span, err)
		p.mu.Lock()
		p.lastPoll, p.lastErr = start, err
		p.cycles++
		p.mu.Unlock()
		return fmt.Errorf("poll live streams: %w", err)
	}

	current := make(map[string]bool, len(streams))
	for _, s := range streams {
		login, opts, ok := p.registry.Lookup(s.Login())
		if !ok {
			p.logger.DebugContext(ctx, "ignoring untracked live stream", slog.String("login", s.Login()), slog.String("component", "poller"))
			continue
		}
		if current[login] {
			continue
		}
		current[login] = true
		if p.trigger == TriggerOnTransition && p.live[login] {
			continue
		}
		p.fire(ctx, Event{Login: login, Options: opts, Stream: s, DetectedAt: start})
	}

	if oa, ok := p.action.(OfflineAction); ok {
		var gone []string
		for login := range p.live {
			if !current[login] {
				gone = append(gone, login)
			}
		}
		sort.Strings(gone)
		for _, login := range gone {
			_, opts, _ := p.registry.Lookup(login)
			if err := oa.OnOffline(ctx, login, opts); err != nil {
				p.logger.WarnContext(ctx, "offline action failed", slog.String("login", login), slog.Any("err", err), slog.String("component", "poller"))
			}
		}
	}

	p.mu.Lock()
	p.live = current
	p.lastPoll, p.lastErr = start, nil
	p.cycles++
	p.mu.Unlock()

	telemetry.SetLiveStreamers(len(current))
	span.SetAttributes(attribute.Int("live", len(current)))
	telemetry.SetSpanSuccess(span)
	return nil
}

func (p *Poller) fire(ctx context.Context, ev Event) {
	err := p.action.OnLive(ctx, ev)
	telemetry.IncLiveAction(err != nil)
	if err != nil {
		p.logger.WarnContext(ctx, "live action failed", slog.String("login", ev.Login), slog.Any("err", err), slog.String("component", "poller"))
	}
}

// Run polls until ctx is canceled, sleeping the interval after each cycle.
// A failed cycle is logged and the loop carries on after the normal interval,
// unless WithStopOnError(true) was given, in which case the error is returned.
// Cancellation returns nil.
func (p *Poller) Run(ctx context.Context) error {
	telemetry.SetTrackedStreamers(p.registry.Len())
	p.logger.Info("poller started",
		slog.Int("streamers", p.registry.Len()),
		slog.Any("logins", p.registry.Logins()),
		slog.Duration("interval", p.interval),
		slog.String("trigger", p.trigger.String()),
		slog.String("component", "poller"))

	for {
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if p.stopOnError {
				return err
			}
			p.logger.Warn("poll failed",
				slog.Any("err", err),
				slog.String("class", twitchapi.ClassifyError(err).String()),
				slog.String("component", "poller"))
		}

		p.logger.Debug("checking again", slog.Duration("in", p.interval), slog.String("component", "poller"))
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", slog.String("component", "poller"))
			return nil
		case <-p.after(p.interval):
		}
	}
}

// Status is a point-in-time view of the poller, served by the HTTP status endpoint.
type Status struct {
	LastPoll        *time.Time `json:"last_poll,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Trigger         string     `json:"trigger"`
	Tracked         []string   `json:"tracked"`
	Live            []string   `json:"live"`
	IntervalSeconds float64    `json:"interval_seconds"`
	Cycles          int        `json:"cycles"`
}

// Ready reports whether at least one cycle ran and the latest one succeeded.
func (s Status) Ready() bool { return s.LastPoll != nil && s.LastError == "" }

// Status returns a snapshot safe to call from any goroutine.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{
		Trigger:         p.trigger.String(),
		Tracked:         append([]string(nil), p.registry.Logins()...),
		Live:            make([]string, 0, len(p.live)),
		IntervalSeconds: p.interval.Seconds(),
		Cycles:          p.cycles,
	}
	for login := range p.live {
		st.Live = append(st.Live, login)
	}
	sort.Strings(st.Live)
	if !p.lastPoll.IsZero() {
		t := p.lastPoll
		st.LastPoll = &t
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}
