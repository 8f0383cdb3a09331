package steps

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"obconsent/internal/platform/config"
)

// Source supplies the phase to ordinal to step-name mapping.
type Source interface {
	AuthorizeSteps() (map[string]map[int]string, error)
}

// Builder assembles pipelines from a Source and keeps the current one for
// concurrent readers.
type Builder struct {
	registry *Registry
	source   Source
	deps     Deps
	current  atomic.Pointer[Pipeline]
}

// NewBuilder creates a builder. Nothing is built until Current or Reload is called.
func NewBuilder(registry *Registry, source Source, deps Deps) *Builder {
	return &Builder{registry: registry, source: source, deps: deps}
}

// Current returns the active pipeline, building it on first use.
func (b *Builder) Current() *Pipeline {
	if p := b.current.Load(); p != nil {
		return p
	}
	p := b.Build()
	if b.current.CompareAndSwap(nil, p) {
		return p
	}
	return b.current.Load()
}

// Reload rebuilds from the source and swaps the result in. In-flight runs keep
// the pipeline they started with.
func (b *Builder) Reload() *Pipeline {
	p := b.Build()
	b.current.Store(p)
	return p
}

// Build assembles a pipeline. It never fails: any configuration error is
// logged and yields a pipeline whose step lists are both unset.
func (b *Builder) Build() *Pipeline {
	logger := b.deps.logger()
	cfg, err := b.source.AuthorizeSteps()
	if err == nil {
		var p *Pipeline
		p, err = b.assemble(cfg)
		if err == nil {
			b.deps.Metrics.IncPipelineBuild("ok")
			logger.Info("authorize pipeline built",
				"retrieve", p.RetrievalSteps(),
				"persist", p.PersistSteps(),
			)
			return p
		}
	}
	b.deps.Metrics.IncPipelineBuild("degraded")
	logger.Error("failed to build authorize pipeline, no steps will run", "error", err)
	return newPipeline(nil, nil, b.deps)
}

func (b *Builder) assemble(cfg map[string]map[int]string) (*Pipeline, error) {
	var (
		retrieve []namedRetrieval
		persist  []namedPersist
	)
	for phase, ordinals := range cfg {
		names, err := orderedNames(phase, ordinals)
		if err != nil {
			return nil, err
		}
		switch phase {
		case config.PhaseRetrieve:
			retrieve = make([]namedRetrieval, 0, len(names))
			for _, name := range names {
				step, err := b.registry.retrievalStep(name, b.deps)
				if err != nil {
					return nil, fmt.Errorf("phase %s: %w", phase, err)
				}
				retrieve = append(retrieve, namedRetrieval{name: name, step: step})
			}
		case config.PhasePersist:
			persist = make([]namedPersist, 0, len(names))
			for _, name := range names {
				step, err := b.registry.persistStep(name, b.deps)
				if err != nil {
					return nil, fmt.Errorf("phase %s: %w", phase, err)
				}
				persist = append(persist, namedPersist{name: name, step: step})
			}
		default:
			b.deps.logger().Warn("ignoring unknown authorize phase", slog.String("phase", phase))
		}
	}
	return newPipeline(retrieve, persist, b.deps), nil
}

func orderedNames(phase string, ordinals map[int]string) ([]string, error) {
	keys := make([]int, 0, len(ordinals))
	for k := range ordinals {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimSpace(ordinals[k])
		if name == "" {
			return nil, fmt.Errorf("phase %s: ordinal %d has no step name", phase, k)
		}
		names = append(names, name)
	}
	return names, nil
}
