package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/metrics"
	"github.com/scottlangford2/research-scraper/internal/progress"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func (o *Orchestrator) fetchSource(ctx context.Context, runID string, scrapedAt time.Time, a rfp.Adapter) Result {
	src := a.Source()
	outcome := rfp.Outcome{Source: src}

	// Queued behind a run that already timed out.
	if err := ctx.Err(); err != nil {
		return o.finish(runID, outcome, nil, err)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.fetch_source",
		trace.WithAttributes(
			attribute.String("rfp.run_id", runID),
			attribute.String("rfp.source", string(src)),
			attribute.String("rfp.method", string(a.Method())),
		),
	)
	defer span.End()

	o.progress.Emit(progress.Event{
		RunID:  runID,
		TS:     o.clock.Now(),
		Stage:  progress.StageSourceStart,
		Source: src,
	})
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	params := rfp.FetchParams{
		Timeout:    o.cfg.SourceTimeout,
		Credential: o.cfg.Credentials[src],
		Region:     o.cfg.Region,
		Historical: o.cfg.Historical,
	}
	srcCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	start := time.Now()
	var (
		raw []rfp.Record
		err error
	)
	for {
		outcome.Attempts++
		raw, err = call(srcCtx, a, params)
		if err == nil || a.Method() != rfp.MethodHTTP || !o.retry.ShouldRetry(err, outcome.Attempts) {
			break
		}
		wait := o.retry.Backoff(outcome.Attempts)
		o.logger.Info("retrying source after transient failure",
			zap.String("source", string(src)),
			zap.Int("attempt", outcome.Attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-srcCtx.Done():
			timer.Stop()
			err = srcCtx.Err()
		case <-timer.C:
			continue
		}
		break
	}
	outcome.Duration = time.Since(start)

	var records []rfp.Record
	if err == nil {
		records, outcome.Dropped = o.normalize(src, raw, scrapedAt)
		if len(records) == 0 {
			err = rfp.ErrEmpty
		}
	}
	res := o.finish(runID, outcome, records, err)

	span.SetAttributes(
		attribute.String("rfp.status", string(res.Outcome.Status)),
		attribute.Int("rfp.records", res.Outcome.Records),
		attribute.Int("rfp.attempts", res.Outcome.Attempts),
	)
	if res.Err != nil && res.Outcome.Status != rfp.OutcomeEmpty {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Outcome.Reason)
	}
	return res
}

// finish classifies err into the outcome, emits SOURCE_DONE and logs.
func (o *Orchestrator) finish(runID string, outcome rfp.Outcome, records []rfp.Record, err error) Result {
	res := Result{}
	switch {
	case err == nil:
		outcome.Status = rfp.OutcomeSuccess
		outcome.Records = len(records)
		res.Records = records
	case errors.Is(err, rfp.ErrEmpty):
		outcome.Status = rfp.OutcomeEmpty
		outcome.Reason = "empty"
		res.Err = &rfp.SourceFetchError{Source: outcome.Source, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		outcome.Status = rfp.OutcomeTimeout
		outcome.Reason = "timeout"
		res.Err = &rfp.SourceFetchError{Source: outcome.Source, Err: err}
	default:
		outcome.Status = rfp.OutcomeError
		outcome.Reason = fmt.Sprintf("%s: %v", rfp.ErrorKind(err), err)
		res.Err = &rfp.SourceFetchError{Source: outcome.Source, Err: err}
	}
	res.Outcome = outcome

	o.progress.Emit(progress.SourceDone(runID, o.clock.Now(), outcome))
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.String("source", string(outcome.Source)),
		zap.String("status", string(outcome.Status)),
		zap.Int("records", outcome.Records),
		zap.Int("dropped", outcome.Dropped),
		zap.Int("attempts", outcome.Attempts),
		zap.Duration("dur", outcome.Duration),
	}
	if outcome.Status == rfp.OutcomeError || outcome.Status == rfp.OutcomeTimeout {
		o.logger.Warn("source failed", append(fields, zap.Error(res.Err))...)
	} else {
		o.logger.Info("source finished", fields...)
	}
	return res
}

type reply struct {
	records []rfp.Record
	err     error
}

// call runs one Fetch on its own goroutine so a hung adapter can be
// abandoned when ctx ends. Panics come back as errors.
func call(ctx context.Context, a rfp.Adapter, params rfp.FetchParams) ([]rfp.Record, error) {
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		records, err := a.Fetch(ctx, params)
		ch <- reply{records: records, err: err}
	}()
	select {
	case rep := <-ch:
		if rep.err == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return rep.records, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
