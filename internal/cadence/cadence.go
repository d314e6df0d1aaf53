// Package cadence decides whether an automatic review proceeds for a pull
// request, implementing the manual and auto-pause cadences with burst
// detection over prior executions.
package cadence

import (
	"context"
	"log/slog"
	"time"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/metrics"
)

// State is the per-PR cadence state persisted between runs.
type State string

const (
	StateAutomatic     State = "automatic"
	StateManualPending State = "manual_pending"
	StatePaused        State = "paused"
	StateCommand       State = "command"
)

// Defaults for auto-pause burst detection.
const (
	DefaultPushesToTrigger   = 3
	DefaultTimeWindowMinutes = 15

	// queryTimeout bounds storage lookups; a timeout is treated as "no
	// signal, proceed" rather than failure.
	queryTimeout = 3 * time.Second
)

// ExecutionStore supplies the prior-execution records cadence decisions
// depend on.
type ExecutionStore interface {
	HasPriorExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (bool, error)
	CountSuccessfulExecutionsSince(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, since time.Time) (int, error)
	GetCadenceState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (State, error)
	SetCadenceState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, state State) error
}

// PauseNotifier posts the user-facing notification when a PR is auto-paused.
type PauseNotifier interface {
	NotifyPaused(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) error
}

// Decision is the outcome of a cadence check.
type Decision struct {
	ShouldProcess bool
	State         State
	Reason        string
}

// Manager evaluates cadence rules against the execution history.
type Manager struct {
	store    ExecutionStore
	notifier PauseNotifier
	log      *slog.Logger
}

// NewManager creates a cadence Manager. The notifier may be nil.
func NewManager(store ExecutionStore, notifier PauseNotifier, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, notifier: notifier, log: log}
}

// Evaluate decides whether the pipeline proceeds for this trigger.
//
// A command origin always proceeds and records the command state. Manual
// cadence lets the first-ever review through, then requires an explicit
// resume. Auto-pause lets reviews through until burst detection trips, then
// stays paused until resumed.
func (m *Manager) Evaluate(ctx context.Context, cfg domain.CadenceConfig, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, origin domain.TriggerOrigin) Decision {
	if origin == domain.OriginCommand {
		m.setState(ctx, org, repo.ID, pr.Number, StateCommand)
		return Decision{ShouldProcess: true, State: StateCommand, Reason: "manual command"}
	}

	switch cfg.Type {
	case domain.CadenceTypeManual:
		return m.evaluateManual(ctx, org, repo, pr)
	case domain.CadenceTypeAutoPause:
		return m.evaluateAutoPause(ctx, cfg, org, repo, pr)
	default:
		return Decision{ShouldProcess: true, State: StateAutomatic, Reason: "automatic cadence"}
	}
}

func (m *Manager) evaluateManual(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) Decision {
	state := m.getState(ctx, org, repo.ID, pr.Number)
	if state == StateCommand {
		return Decision{ShouldProcess: true, State: StateCommand, Reason: "resumed by command"}
	}

	prior, err := m.hasPrior(ctx, org, repo.ID, pr.Number)
	if err != nil {
		// No signal, bias toward availability.
		m.log.Warn("prior execution lookup failed, proceeding", "error", err, "pr_number", pr.Number)
		return Decision{ShouldProcess: true, State: StateAutomatic, Reason: "execution history unavailable"}
	}
	if !prior {
		m.setState(ctx, org, repo.ID, pr.Number, StateAutomatic)
		return Decision{ShouldProcess: true, State: StateAutomatic, Reason: "first review"}
	}
	return Decision{ShouldProcess: false, State: StateManualPending, Reason: "manual cadence requires an explicit resume"}
}

func (m *Manager) evaluateAutoPause(ctx context.Context, cfg domain.CadenceConfig, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) Decision {
	prior, err := m.hasPrior(ctx, org, repo.ID, pr.Number)
	if err != nil {
		m.log.Warn("prior execution lookup failed, proceeding", "error", err, "pr_number", pr.Number)
		return Decision{ShouldProcess: true, State: StateAutomatic, Reason: "execution history unavailable"}
	}
	if !prior {
		return Decision{ShouldProcess: true, State: StateAutomatic, Reason: "first review"}
	}

	if m.getState(ctx, org, repo.ID, pr.Number) == StatePaused {
		return Decision{ShouldProcess: false, State: StatePaused, Reason: "reviews paused until resumed"}
	}

	pushes := cfg.PushesToTrigger
	if pushes <= 0 {
		pushes = DefaultPushesToTrigger
	}
	window := time.Duration(cfg.TimeWindowMinutes) * time.Minute
	if window <= 0 {
		window = DefaultTimeWindowMinutes * time.Minute
	}

	count := m.countRecent(ctx, org, repo.ID, pr.Number, time.Now().Add(-window))
	if count >= pushes {
		m.setState(ctx, org, repo.ID, pr.Number, StatePaused)
		metrics.CadencePauses.Inc()
		if m.notifier != nil {
			if err := m.notifier.NotifyPaused(ctx, org, repo, pr); err != nil {
				m.log.Warn("pause notification failed", "error", err, "pr_number", pr.Number)
			}
		}
		m.log.Info("burst detected, pausing automatic reviews",
			"pr_number", pr.Number, "pushes", count, "window", window)
		return Decision{ShouldProcess: false, State: StatePaused, Reason: "push burst detected"}
	}

	return Decision{ShouldProcess: true, State: StateAutomatic, Reason: "within push budget"}
}

func (m *Manager) hasPrior(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (bool, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return m.store.HasPriorExecution(qctx, org, repoID, prNumber)
}

// countRecent returns the number of successful executions inside the window.
// Timeouts and query errors count as zero.
func (m *Manager) countRecent(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, since time.Time) int {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	count, err := m.store.CountSuccessfulExecutionsSince(qctx, org, repoID, prNumber, since)
	if err != nil {
		m.log.Warn("burst count query failed, treating as no burst", "error", err, "pr_number", prNumber)
		return 0
	}
	return count
}

func (m *Manager) getState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) State {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	state, err := m.store.GetCadenceState(qctx, org, repoID, prNumber)
	if err != nil {
		m.log.Warn("cadence state lookup failed", "error", err, "pr_number", prNumber)
		return ""
	}
	return state
}

func (m *Manager) setState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, state State) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := m.store.SetCadenceState(qctx, org, repoID, prNumber, state); err != nil {
		m.log.Warn("cadence state update failed", "error", err, "pr_number", prNumber, "state", state)
	}
}
