// Package service orchestrates the query pipeline over the domain capabilities.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"groundrag/internal/async"
	"groundrag/internal/domain"
	"groundrag/internal/grounding"
	"groundrag/internal/retrieval"
)

var _ domain.QueryService = (*QueryPipeline)(nil)

// Credential is a secret a configured provider needs. Only its name is ever
// reported; the value is checked for presence.
type Credential struct {
	Name  string
	Value string
	// RetrievalOnly marks credentials used by the embedder or index, which
	// direct-mode queries never touch.
	RetrievalOnly bool
}

// Config carries everything the pipeline needs from process configuration.
// Start from DefaultConfig: the zero value has a relevance floor of 0, which
// admits every passage.
type Config struct {
	TopK int
	// RelevanceFloor is the minimum top score on the [0, 1] relevance scale.
	// It is used as given, so an explicit 0 disables the adequacy guard.
	RelevanceFloor float64
	// StageTimeout bounds each blocking stage. Zero disables the bound.
	StageTimeout   time.Duration
	MaxPromptChars int
	Credentials    []Credential
}

// DefaultConfig returns the adequacy guard defaults (top 3, floor 0.7), the
// default prompt limit and no stage timeout or credentials.
func DefaultConfig() Config {
	return Config{
		TopK:           retrieval.DefaultTopK,
		RelevanceFloor: retrieval.DefaultRelevanceFloor,
		MaxPromptChars: grounding.DefaultMaxChars,
	}
}

// TemplateSource yields the prompt template for the next invocation.
type TemplateSource interface {
	Template() (string, error)
}

// StaticTemplate is a TemplateSource with a fixed template.
type StaticTemplate string

func (s StaticTemplate) Template() (string, error) { return string(s), nil }

// QueryPipeline answers questions in retrieval or direct mode. It holds no
// per-invocation state and is safe for concurrent use.
type QueryPipeline struct {
	cfg       Config
	retriever *retrieval.Retriever
	generator domain.Generator
	templates TemplateSource
	log       *zap.Logger
}

// NewQueryPipeline wires the capabilities together. A nil templates source
// selects the built-in template.
func NewQueryPipeline(cfg Config, embedder domain.Embedder, index domain.VectorIndex, generator domain.Generator, templates TemplateSource, log *zap.Logger) (*QueryPipeline, error) {
	if generator == nil {
		return nil, errors.New("service: generator is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if templates == nil {
		templates = StaticTemplate(grounding.DefaultTemplate)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	retriever, err := retrieval.New(embedder, index, cfg.StageTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return &QueryPipeline{cfg: cfg, retriever: retriever, generator: generator, templates: templates, log: log}, nil
}

// RunRetrievalQuery grounds the answer in passages retrieved for query.
func (p *QueryPipeline) RunRetrievalQuery(ctx context.Context, query string) (domain.QueryResult, error) {
	log := p.invocationLogger("retrieval")
	start := time.Now()

	if err := p.checkCredentials(true); err != nil {
		return p.fail(log, err)
	}
	if err := checkQuery(query); err != nil {
		return p.fail(log, err)
	}

	passages, err := p.retriever.Retrieve(ctx, query, p.cfg.TopK, p.cfg.RelevanceFloor)
	if err != nil {
		return p.fail(log, err)
	}
	log.Debug("retrieved", zap.Int("passages", len(passages)), zap.Float64("top_score", passages[0].Score))

	log.Debug("stage", zap.String("stage", string(domain.StageAssembling)))
	grounded := grounding.Assemble(passages)

	answer, err := p.answer(ctx, log, grounded, query)
	if err != nil {
		return p.fail(log, err)
	}

	log.Info("query succeeded", zap.Duration("took", time.Since(start)))
	return domain.QueryResult{
		Answer:   answer,
		Sources:  retrieval.Sources(passages),
		Context:  grounded,
		Passages: grounding.Texts(passages),
	}, nil
}

// RunDirectQuery answers query from documentText alone. No retrieval or
// adequacy check happens and the result carries no sources.
func (p *QueryPipeline) RunDirectQuery(ctx context.Context, documentText, query string) (domain.QueryResult, error) {
	log := p.invocationLogger("direct")
	start := time.Now()

	if err := p.checkCredentials(false); err != nil {
		return p.fail(log, err)
	}
	if err := checkQuery(query); err != nil {
		return p.fail(log, err)
	}

	log.Debug("stage", zap.String("stage", string(domain.StageAssembling)), zap.Int("document_chars", len(documentText)))
	grounded := grounding.AssembleDocument(documentText)

	answer, err := p.answer(ctx, log, grounded, query)
	if err != nil {
		return p.fail(log, err)
	}

	log.Info("query succeeded", zap.Duration("took", time.Since(start)))
	return domain.QueryResult{Answer: answer, Sources: []string{}, Context: grounded}, nil
}

func (p *QueryPipeline) answer(ctx context.Context, log *zap.Logger, grounded, query string) (string, error) {
	log.Debug("stage", zap.String("stage", string(domain.StagePrompting)))
	template, err := p.templates.Template()
	if err != nil {
		return "", domain.StageFailure(domain.StagePrompting, domain.KindTemplate, "prompt template unavailable", err)
	}
	builder, err := grounding.NewPromptBuilder(template, p.cfg.MaxPromptChars)
	if err != nil {
		return "", err
	}
	prompt, err := builder.Build(grounded, query)
	if err != nil {
		return "", err
	}

	log.Debug("stage", zap.String("stage", string(domain.StageGenerating)), zap.String("generator", p.generator.Name()))
	answer, err := async.Call(ctx, p.cfg.StageTimeout, func(ctx context.Context) (string, error) {
		return p.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return "", domain.StageFailure(domain.StageGenerating, domain.KindGeneration, "generation failed", err)
	}
	return answer, nil
}

func (p *QueryPipeline) checkCredentials(retrievalMode bool) error {
	var missing []string
	for _, c := range p.cfg.Credentials {
		if c.RetrievalOnly && !retrievalMode {
			continue
		}
		if strings.TrimSpace(c.Value) == "" {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		e := domain.ConfigurationError(fmt.Sprintf("missing credential: %s", strings.Join(missing, ", ")), nil)
		e.Stage = domain.StageIdle
		return e
	}
	return nil
}

func checkQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		e := domain.NewError(domain.KindInvalidQuery, domain.SubKindNone, "query is empty", nil)
		e.Stage = domain.StageIdle
		return e
	}
	return nil
}

func (p *QueryPipeline) invocationLogger(mode string) *zap.Logger {
	return p.log.With(zap.String("invocation", uuid.NewString()), zap.String("mode", mode))
}

// fail logs the failure and guarantees a *domain.Error crosses the boundary.
func (p *QueryPipeline) fail(log *zap.Logger, err error) (domain.QueryResult, error) {
	derr, ok := domain.AsError(err)
	if !ok {
		derr = domain.StageFailure(domain.StageFailed, domain.KindConfiguration, "unexpected failure", err)
	}
	fields := []zap.Field{
		zap.String("kind", string(derr.Kind)),
		zap.String("stage", string(derr.Stage)),
		zap.String("message", derr.Message),
	}
	if derr.SubKind != domain.SubKindNone {
		fields = append(fields, zap.String("sub_kind", string(derr.SubKind)))
	}
	if derr.Kind == domain.KindAdequacy {
		log.Info("query not grounded", fields...)
	} else {
		log.Warn("query failed", fields...)
	}
	return domain.QueryResult{}, derr
}
