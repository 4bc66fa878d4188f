package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/twitch-recorder/twitchapi"
)

// Event describes a tracked streamer seen live during a poll cycle.
type Event struct {
	Login      string
	Options    Options
	Stream     twitchapi.Stream
	DetectedAt time.Time
}

// Action is the live-action performed for a live streamer.
type Action interface {
	OnLive(ctx context.Context, ev Event) error
}

// OfflineAction is implemented by actions that want to know when a streamer
// seen live in the previous cycle is no longer reported live.
type OfflineAction interface {
	OnOffline(ctx context.Context, login string, opts Options) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, ev Event) error

func (f ActionFunc) OnLive(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Actions runs each action in order and joins their errors.
type Actions []Action

func (as Actions) OnLive(ctx context.Context, ev Event) error {
	var errs []error
	for _, a := range as {
		if err := a.OnLive(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (as Actions) OnOffline(ctx context.Context, login string, opts Options) error {
	var errs []error
	for _, a := range as {
		if oa, ok := a.(OfflineAction); ok {
			if err := oa.OnOffline(ctx, login, opts); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// LogAction logs every live detection. A nil Logger uses slog.Default().
type LogAction struct {
	Logger *slog.Logger
}

func (a LogAction) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a LogAction) OnLive(ctx context.Context, ev Event) error {
	a.logger().InfoContext(ctx, "streamer live",
		slog.String("login", ev.Login),
		slog.Any("options", map[string]any(ev.Options)),
		slog.String("title", ev.Stream.Title),
		slog.String("game", ev.Stream.GameName),
		slog.Int("viewers", ev.Stream.ViewerCount),
		slog.String("component", "poller"))
	return nil
}

func (a LogAction) OnOffline(ctx context.Context, login string, _ Options) error {
	a.logger().InfoContext(ctx, "streamer offline", slog.String("login", login), slog.String("component", "poller"))
	return nil
}
