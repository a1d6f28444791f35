package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot-cli/internal/model"
)

// Sink persists run records and results.
type Sink interface {
	RecordRun(ctx context.Context, run *model.Run) error
	SaveResult(ctx context.Context, res *model.Result) error
}

// Execute runs the analysis and persists it through sink. The run record is
// written as running first and updated when the run ends. Output tables are
// replaced only after the whole run succeeded; on failure the previous
// tables stay in place and the run is recorded as failed. A nil sink skips
// persistence.
func (e *Engine) Execute(ctx context.Context, sink Sink, mode model.RunMode, snap Snapshot) (*model.Result, *model.Run, error) {
	if err := e.validate(mode); err != nil {
		return nil, nil, err
	}
	run := &model.Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunStatusRunning,
		Seed:      e.Seed(),
		StartedAt: e.now().UTC(),
	}
	log := zap.L().With(zap.String("component", "engine"), zap.String("run_id", run.ID))

	if sink != nil {
		if err := sink.RecordRun(ctx, run); err != nil {
			return nil, run, eris.Wrap(err, "engine: record run start")
		}
	}

	res, err := e.run(ctx, run.ID, mode, run.Seed, snap)
	if err == nil && sink != nil {
		if serr := sink.SaveResult(ctx, res); serr != nil {
			err = eris.Wrap(serr, "engine: save result")
		}
	}
	if err != nil {
		e.fail(ctx, sink, run, err, log)
		return res, run, err
	}

	finished := e.now().UTC()
	run.Status = res.Status()
	run.Summary = res.Summary
	run.FinishedAt = &finished
	if sink != nil {
		if rerr := sink.RecordRun(ctx, run); rerr != nil {
			return res, run, eris.Wrap(rerr, "engine: record run end")
		}
	}
	return res, run, nil
}

func (e *Engine) fail(ctx context.Context, sink Sink, run *model.Run, cause error, log *zap.Logger) {
	finished := e.now().UTC()
	run.Status = model.RunStatusFailed
	run.Error = cause.Error()
	run.FinishedAt = &finished
	e.metrics.RecordSummary(&model.Summary{
		RunID: run.ID, Mode: run.Mode, Status: model.RunStatusFailed,
		StartedAt: run.StartedAt, FinishedAt: finished,
	})
	log.Error("engine: run failed", zap.Error(cause))
	if sink == nil {
		return
	}
	// The run context may already be canceled; the failure is still recorded.
	if err := sink.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("engine: failed to record failed run", zap.Error(err))
	}
}
