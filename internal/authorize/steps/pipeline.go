package steps

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"obconsent/internal/authorize/consenterr"
	"obconsent/internal/authorize/metrics"
	"obconsent/internal/authorize/models"
	"obconsent/internal/platform/config"
	"obconsent/pkg/requestcontext"
)

const (
	msgPersistFailed  = "Exception occurred while persisting consent"
	msgRetrieveFailed = "Exception occurred while retrieving consent data"
)

type namedRetrieval struct {
	name string
	step RetrievalStep
}

type namedPersist struct {
	name string
	step PersistStep
}

// Pipeline is an immutable pair of ordered step lists. A nil list means the
// phase was not configured; callers treat it like an empty one.
type Pipeline struct {
	retrieve []namedRetrieval
	persist  []namedPersist
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func newPipeline(retrieve []namedRetrieval, persist []namedPersist, deps Deps) *Pipeline {
	return &Pipeline{
		retrieve: retrieve,
		persist:  persist,
		logger:   deps.logger(),
		metrics:  deps.Metrics,
		tracer:   otel.Tracer("obconsent/internal/authorize/steps"),
	}
}

// RetrievalSteps returns the configured retrieval step names in run order,
// nil when the phase is unset.
func (p *Pipeline) RetrievalSteps() []string {
	if p.retrieve == nil {
		return nil
	}
	names := make([]string, 0, len(p.retrieve))
	for _, s := range p.retrieve {
		names = append(names, s.name)
	}
	return names
}

// PersistSteps returns the configured persist step names in run order, nil
// when the phase is unset.
func (p *Pipeline) PersistSteps() []string {
	if p.persist == nil {
		return nil
	}
	names := make([]string, 0, len(p.persist))
	for _, s := range p.persist {
		names = append(names, s.name)
	}
	return names
}

// RunRetrieve executes the retrieval steps in order. The first failure stops
// the run and is returned as a *consenterr.Error.
func (p *Pipeline) RunRetrieve(ctx context.Context, data *models.ConsentRetrieveData) error {
	for _, s := range p.retrieve {
		err := p.run(ctx, config.PhaseRetrieve, s.name, func(ctx context.Context) error {
			return s.step.Execute(ctx, data)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RunPersist executes the persist steps in order. The first failure stops the
// run and is returned as a *consenterr.Error; steps already run are not undone.
// With no persist steps nothing is committed and the outcome is "noop".
func (p *Pipeline) RunPersist(ctx context.Context, data *models.ConsentPersistData) error {
	if len(p.persist) == 0 {
		p.metrics.IncPersistOutcome("noop")
		return nil
	}
	for _, s := range p.persist {
		err := p.run(ctx, config.PhasePersist, s.name, func(ctx context.Context) error {
			return s.step.Execute(ctx, data)
		})
		if err != nil {
			p.metrics.IncPersistOutcome(outcomeOf(err))
			return err
		}
	}
	if data.Approved {
		p.metrics.IncPersistOutcome("authorized")
	} else {
		p.metrics.IncPersistOutcome("rejected")
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, phase, name string, exec func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "authorize.step."+name, trace.WithAttributes(
		attribute.String("authorize.phase", phase),
		attribute.String("authorize.step", name),
	))
	defer span.End()

	start := time.Now()
	err := exec(ctx)
	if err == nil {
		p.metrics.ObserveStep(phase, name, "ok", time.Since(start))
		return nil
	}

	ce, ok := consenterr.As(err)
	if !ok {
		msg := msgRetrieveFailed
		if phase == config.PhasePersist {
			msg = msgPersistFailed
		}
		ce = consenterr.Internal(msg, err)
	}
	p.metrics.ObserveStep(phase, name, ce.Kind.String(), time.Since(start))
	span.RecordError(err)
	span.SetStatus(codes.Error, ce.Payload.Error)

	level := slog.LevelWarn
	if ce.Kind == consenterr.KindServer {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "authorize step failed",
		"phase", phase,
		"step", name,
		"kind", ce.Kind.String(),
		"status", ce.Status,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return ce
}

func outcomeOf(err error) string {
	if ce, ok := consenterr.As(err); ok {
		return ce.Kind.String()
	}
	return consenterr.KindServer.String()
}
