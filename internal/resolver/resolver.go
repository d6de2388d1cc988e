package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/scriptdeps/internal/config"
	"github.com/mmr-tortoise/scriptdeps/internal/deps"
	"github.com/mmr-tortoise/scriptdeps/internal/maven"
	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

var (
	// ErrUnknownAnnotation is returned when a script carries an annotation
	// kind other than Repository or DependsOn.
	ErrUnknownAnnotation = errors.New("unknown annotation")

	// ErrInvalidRepository is returned when no engine accepts a repository
	// argument, or registering it fails.
	ErrInvalidRepository = errors.New("invalid repository argument")
)

// ScriptDependenciesResolver resolves script annotations against a
// resolver engine. It is safe to drain the accumulated classpath from
// another goroutine while a pass runs; the passes themselves are meant to
// be run one at a time.
type ScriptDependenciesResolver struct {
	engine deps.Resolver
	logger *zap.Logger

	mu             sync.Mutex
	addedClasspath []string
}

// New builds a resolver backed by a local filesystem engine and a Maven
// engine, and registers the repositories listed in cfg. A configured
// repository that no engine accepts is logged and skipped.
func New(cfg *config.Config, logger *zap.Logger) (*ScriptDependenciesResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxSize, err := cfg.MaxArtifactBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	engine := deps.NewCompound(
		deps.NewFilesystem(),
		maven.New(maven.Options{
			CacheDir:        cfg.MavenCacheDir(),
			Timeout:         cfg.Timeout(),
			MaxArtifactSize: maxSize,
			Concurrency:     cfg.Concurrency,
			Logger:          logger,
		}),
	)

	for _, repo := range cfg.Repositories {
		if !deps.TryAddRepository(engine, repo) {
			logger.Warn("Ignoring configured repository", zap.String("repository", repo))
		}
	}

	return NewWithEngine(engine, logger), nil
}

// NewWithEngine builds a resolver around an arbitrary engine.
func NewWithEngine(engine deps.Resolver, logger *zap.Logger) *ScriptDependenciesResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptDependenciesResolver{
		engine:         engine,
		logger:         logger.Named("resolver"),
		addedClasspath: []string{},
	}
}

// ResolveFromAnnotations processes the script's annotations in order.
//
// The returned error is non-nil only for structurally invalid input, in
// which case processing stops at the offending annotation. Dependency
// failures are reported as diagnostics in the result instead.
func (r *ScriptDependenciesResolver) ResolveFromAnnotations(ctx context.Context, script model.Script) (*model.ResolveResult, error) {
	classpath := []string{}
	var diagnostics []model.Diagnostic

	for _, a := range script.Annotations {
		switch a.Kind {
		case model.KindRepository:
			r.logger.Info("Adding repository", zap.String("script", script.Name), zap.String("repository", a.Value))
			if !deps.TryAddRepository(r.engine, a.Value) {
				return nil, fmt.Errorf("%w %q at %s", ErrInvalidRepository, a.Value, location(script, a))
			}

		case model.KindDependsOn:
			r.logger.Info("Resolving", zap.String("script", script.Name), zap.String("coordinate", a.Value))
			files, diag := r.resolve(ctx, script, a)
			if diag != nil {
				diagnostics = append(diagnostics, *diag)
				continue
			}
			r.logger.Info("Resolved",
				zap.String("coordinate", a.Value),
				zap.Strings("files", files),
			)
			classpath = append(classpath, files...)
			r.appendAdded(files)

		default:
			return nil, fmt.Errorf("%w %s at %s", ErrUnknownAnnotation, a, location(script, a))
		}
	}

	if len(diagnostics) > 0 {
		return model.Failure(diagnostics), nil
	}
	return model.Success(classpath), nil
}

// resolve resolves one coordinate. It never returns both files and a
// diagnostic. A panic inside the engine is recovered into a diagnostic so
// that the remaining annotations are still processed.
func (r *ScriptDependenciesResolver) resolve(ctx context.Context, script model.Script, a model.Annotation) (files []string, diag *model.Diagnostic) {
	defer func() {
		if p := recover(); p != nil {
			files = nil
			diag = r.unhandled(script, a, fmt.Errorf("panic: %v", p))
		}
	}()

	files, err := r.engine.Resolve(ctx, a.Value)
	if err == nil {
		return files, nil
	}

	if re, ok := deps.AsResolveError(err); ok {
		msg := fmt.Sprintf("Failed to resolve %s:\n%s", a.Value, strings.Join(re.Messages(), "\n"))
		r.logger.Warn("Resolution failed",
			zap.String("coordinate", a.Value),
			zap.Strings("reports", re.Messages()),
		)
		return nil, &model.Diagnostic{
			Message:  msg,
			Severity: model.SeverityError,
			Location: location(script, a),
		}
	}
	return nil, r.unhandled(script, a, err)
}

func (r *ScriptDependenciesResolver) unhandled(script model.Script, a model.Annotation, err error) *model.Diagnostic {
	r.logger.Error("Unhandled error during resolve",
		zap.String("coordinate", a.Value),
		zap.Error(err),
	)
	return &model.Diagnostic{
		Message:  fmt.Sprintf("Unhandled error during resolve of %s", a.Value),
		Severity: model.SeverityError,
		Location: location(script, a),
		Err:      err,
	}
}

func (r *ScriptDependenciesResolver) appendAdded(files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addedClasspath = append(r.addedClasspath, files...)
}

// PopAddedClasspath returns every file resolved since the previous call
// and clears the accumulator. It never returns nil.
func (r *ScriptDependenciesResolver) PopAddedClasspath() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.addedClasspath
	r.addedClasspath = []string{}
	return out
}

// location renders "script:line", or just the script name when the line
// is unknown.
func location(script model.Script, a model.Annotation) string {
	if a.Line > 0 {
		return fmt.Sprintf("%s:%d", script.Name, a.Line)
	}
	return script.Name
}
