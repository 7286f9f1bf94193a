package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"healthwire/internal/core"
)

// runLog writes the AgentLog rows of one run. Failing to write a row is
// logged and otherwise ignored so bookkeeping never fails the run.
type runLog struct {
	db      agentLogAppender
	log     *slog.Logger
	id      string
	agent   string
	started time.Time
}

type agentLogAppender interface {
	Append(ctx context.Context, entry *core.AgentLog) error
}

func (p *Pipeline) startRun(ctx context.Context, agent string) *runLog {
	r := &runLog{
		db:      p.db.AgentLogs(),
		id:      uuid.NewString(),
		agent:   agent,
		started: p.now(),
	}
	r.log = p.log.With("run_id", r.id, "pipeline", agent)
	r.log.Info("Run started")
	r.append(ctx, "run", core.LogStarted, nil)
	return r
}

func (r *runLog) append(ctx context.Context, action string, status core.AgentLogStatus, details map[string]any) {
	entry := &core.AgentLog{
		AgentName: r.agent,
		Action:    action,
		Status:    status,
		Details:   details,
		RunID:     r.id,
	}
	if err := r.db.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Warn("Failed to write agent log", "action", action, "error", err)
	}
}

// warn records a soft failure.
func (r *runLog) warn(ctx context.Context, action string, err error, details map[string]any) {
	details = withError(details, err)
	r.log.Warn("Soft failure", "action", action, "details", details)
	r.append(ctx, action, core.LogWarning, details)
}

// itemError records an item failure.
func (r *runLog) itemError(ctx context.Context, action string, err error, details map[string]any) {
	details = withError(details, err)
	r.log.Error("Item failed", "action", action, "details", details)
	r.append(ctx, action, core.LogError, details)
}

// succeed writes the final success row with the run stats.
func (r *runLog) succeed(ctx context.Context, stats any) {
	r.log.Info("Run completed", "stats", stats)
	r.append(ctx, "run", core.LogSuccess, toDetails(stats))
}

// fail writes the final error row for a run that could not complete.
func (r *runLog) fail(ctx context.Context, err error, stats any) {
	details := withError(toDetails(stats), err)
	r.log.Error("Run failed", "error", err)
	r.append(ctx, "run", core.LogError, details)
}

func withError(details map[string]any, err error) map[string]any {
	if details == nil {
		details = make(map[string]any)
	}
	if err != nil {
		details["error"] = err.Error()
	}
	return details
}

// toDetails flattens a stats struct into the JSON object stored on the log row.
func toDetails(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"encode_error": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"encode_error": err.Error()}
	}
	return out
}
