package poller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/twitch-recorder/telemetry"
)

const (
	// OptionCommand is the options key holding the recorder argv.
	OptionCommand = "command"
	// OptionDir is the options key holding the recorder working directory.
	OptionDir = "dir"

	placeholderTimeLayout = "20060102-150405"

	// DefaultStopGrace is how long a recorder may take to exit after the interrupt.
	DefaultStopGrace = 10 * time.Second
)

// ExecAction spawns the streamer's configured recorder command when it is live.
// At most one recorder runs per login; while it is running, later live detections
// for that login are no-ops. Processes are interrupted when the context given to
// NewExecAction is canceled.
//
// The argv may use {login}, {title}, {started_at} and {time}; the process also
// gets STREAMER_LOGIN and STREAM_TITLE in its environment.
type ExecAction struct {
	ctx       context.Context
	now       func() time.Time
	stopGrace time.Duration

	mu      sync.Mutex
	running map[string]*exec.Cmd
	wg      sync.WaitGroup
}

// NewExecAction returns an ExecAction whose processes live at most as long as ctx.
// On cancellation each recorder gets os.Interrupt and is killed if still running
// after DefaultStopGrace.
func NewExecAction(ctx context.Context) *ExecAction {
	return &ExecAction{
		ctx:       ctx,
		now:       time.Now,
		stopGrace: DefaultStopGrace,
		running:   make(map[string]*exec.Cmd),
	}
}

func (a *ExecAction) OnLive(_ context.Context, ev Event) error {
	argv, err := ev.Options.StringList(OptionCommand)
	if err != nil {
		return fmt.Errorf("recorder for %s: %w", ev.Login, err)
	}
	if len(argv) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.running[ev.Login]; busy {
		slog.Debug("recorder already running", slog.String("login", ev.Login), slog.String("component", "recorder"))
		return nil
	}

	r := strings.NewReplacer(
		"{login}", ev.Login,
		"{title}", ev.Stream.Title,
		"{started_at}", ev.Stream.StartedAt.UTC().Format(placeholderTimeLayout),
		"{time}", a.now().UTC().Format(placeholderTimeLayout),
	)
	args := make([]string, len(argv))
	for i, s := range argv {
		args[i] = r.Replace(s)
	}

	//nolint:gosec // G204: the command comes from the operator's config file
	cmd := exec.CommandContext(a.ctx, args[0], args[1:]...)
	cmd.Dir = ev.Options.StringValue(OptionDir)
	cmd.Env = append(os.Environ(), "STREAMER_LOGIN="+ev.Login, "STREAM_TITLE="+ev.Stream.Title)
	cmd.Stderr = os.Stderr
	// Interrupt on shutdown so recorders can finalize their output; kill after the grace period.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = a.stopGrace
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start recorder for %s: %w", ev.Login, err)
	}
	a.running[ev.Login] = cmd
	telemetry.IncRecordersStarted()
	telemetry.SetRunningRecorders(len(a.running))
	slog.Info("recorder started", slog.String("login", ev.Login), slog.Int("pid", cmd.Process.Pid), slog.String("command", args[0]), slog.String("component", "recorder"))

	a.wg.Add(1)
	go func(login string, cmd *exec.Cmd) {
		defer a.wg.Done()
		err := cmd.Wait()

		a.mu.Lock()
		delete(a.running, login)
		telemetry.SetRunningRecorders(len(a.running))
		a.mu.Unlock()

		if err != nil {
			slog.Warn("recorder exited", slog.String("login", login), slog.Any("err", err), slog.String("component", "recorder"))
			return
		}
		slog.Info("recorder finished", slog.String("login", login), slog.String("component", "recorder"))
	}(ev.Login, cmd)
	return nil
}

// Running reports whether a recorder process for login is still running.
func (a *ExecAction) Running(login string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.running[login]
	return ok
}

// Wait blocks until every spawned recorder has exited.
func (a *ExecAction) Wait() { a.wg.Wait() }
