package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clinia-sante/clinia/internal/shared/config"
	"github.com/clinia-sante/clinia/internal/shared/events"
	"github.com/clinia-sante/clinia/internal/shared/metrics"
)

// Generator is the text-generation collaborator. Implementations must
// honor context cancellation; the service bounds every call with the
// configured timeout.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MockSource resolves canned condition templates by free-text matching
type MockSource interface {
	ForText(text string) NormalizedAnalysis
}

// ModelFallback is the model tag on degraded responses
const ModelFallback = "fallback"

// ModelMock is the model tag on mock responses
const ModelMock = "mock"

// Service orchestrates the analysis pipeline: fingerprint, cache lookup,
// mock path or admission-controlled model call, normalization, and
// non-fatal persistence. No path produces an unstructured error; every
// outcome is a fully-shaped Envelope.
type Service struct {
	cfg       config.AIConfig
	store     ResultStore // nil when running without a database
	mocks     MockSource
	generator Generator // nil when no API key is configured
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	bus       *events.Bus // nil when audit events are disabled
}

// NewService wires the pipeline. The limiter and breaker are owned by the
// service and live for the process lifetime.
func NewService(cfg config.AIConfig, store ResultStore, mocks MockSource, generator Generator, bus *events.Bus) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		mocks:     mocks,
		generator: generator,
		limiter:   NewRateLimiter(cfg.RateWindow, cfg.RateMaxCalls),
		breaker:   NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		bus:       bus,
	}
}

// Limiter exposes the admission controller, for tests
func (s *Service) Limiter() *RateLimiter { return s.limiter }

// Breaker exposes the circuit breaker, for tests
func (s *Service) Breaker() *CircuitBreaker { return s.breaker }

// Analyze runs the full pipeline for one request
func (s *Service) Analyze(ctx context.Context, req Request) Envelope {
	if !req.HasClinicalContent() {
		return s.insufficientInput()
	}

	fingerprint := Fingerprint(req)

	// Cache lookup: a previous analysis of the same normalized content is
	// reused as-is, whatever mode produced it.
	if s.store != nil {
		if cached, err := s.store.FindByFingerprint(ctx, fingerprint); err == nil {
			metrics.RecordCacheHit()
			metrics.RecordAnalysis(string(cached.Mode))
			return Envelope{
				Data: cached.Output,
				Meta: ResponseMeta{Source: Source(cached.Mode), Model: cached.Model},
			}
		} else if !errors.Is(err, ErrResultNotFound) {
			log.Printf("analysis: cache lookup failed: %v", err)
		}
	}

	useMock := s.cfg.MockMode && !req.ForceReal
	if useMock || s.generator == nil {
		return s.mockPath(ctx, req, fingerprint)
	}

	return s.realPath(ctx, req, fingerprint)
}

// mockPath synthesizes an analysis from the canned condition templates
func (s *Service) mockPath(ctx context.Context, req Request, fingerprint string) Envelope {
	matchText := req.Diagnosis + " " + strings.Join(req.Symptoms, " ")

	out := s.mocks.ForText(matchText)
	out.Meta.Model = ModelMock

	meta := ResponseMeta{Source: SourceMock, Model: ModelMock}
	s.persist(ctx, NewResult(fingerprint, req, out, ModeMock, ModelMock), &meta)
	s.publishCompleted(ctx, fingerprint, SourceMock, ModelMock)

	metrics.RecordAnalysis(string(SourceMock))
	return Envelope{Data: out, Meta: meta}
}

// realPath runs admission control, the breaker, the model call, and
// normalization. Every failure routes to the degraded envelope.
func (s *Service) realPath(ctx context.Context, req Request, fingerprint string) Envelope {
	admission := s.limiter.Admit()
	if !admission.OK {
		metrics.RecordRateLimitRejection()
		env := s.degraded("model call quota exhausted for the current window")
		env.Meta.RetryAfterSeconds = admission.RetryAfterSeconds()
		return env
	}

	// The breaker is evaluated after the limiter; both must admit.
	// forceReal does not override an open breaker.
	if !s.breaker.CanCall() {
		return s.degraded("model temporarily isolated after repeated failures")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.generator.Generate(callCtx, s.buildPrompt(req))
	elapsed := time.Since(start)

	if err != nil {
		s.breaker.RecordFailure()
		metrics.RecordBreakerState(int(s.breaker.State()))
		metrics.RecordAICall("failure", elapsed)
		log.Printf("analysis: model call failed: %v", err)
		return s.degraded("model call failed")
	}

	s.breaker.RecordSuccess()
	metrics.RecordBreakerState(int(s.breaker.State()))
	metrics.RecordAICall("success", elapsed)

	out := Normalize(raw)
	out.Meta.Model = s.cfg.Model

	meta := ResponseMeta{Source: SourceReal, Model: s.cfg.Model}
	s.persist(ctx, NewResult(fingerprint, req, out, ModeReal, s.cfg.Model), &meta)
	s.publishCompleted(ctx, fingerprint, SourceReal, s.cfg.Model)

	metrics.RecordAnalysis(string(SourceReal))
	return Envelope{Data: out, Meta: meta}
}

// degraded produces the contract shape from an empty upstream object
func (s *Service) degraded(reason string) Envelope {
	out := NormalizeObject(map[string]any{})
	out.Meta.Model = ModelFallback
	out.Meta.ConfidenceScore = 0

	metrics.RecordAnalysis(string(SourceDegraded))
	return Envelope{
		Data: out,
		Meta: ResponseMeta{
			Source:   SourceDegraded,
			Model:    ModelFallback,
			Warnings: []string{reason},
		},
	}
}

// insufficientInput is the still-200 response for requests the pipeline
// cannot analyze. The UI renders it like any other low-certainty result.
func (s *Service) insufficientInput() Envelope {
	out := EmptyAnalysis()
	out.Diagnosis.Justification = "Insufficient clinical data: provide a diagnosis or at least one symptom."
	out.PatientSummary.PlainLanguage = "Not enough information was provided to suggest treatments."
	out.Meta.Model = ModelFallback

	metrics.RecordAnalysis(string(SourceDegraded))
	return Envelope{
		Data: out,
		Meta: ResponseMeta{
			Source:   SourceDegraded,
			Model:    ModelFallback,
			Warnings: []string{"insufficient clinical data"},
		},
	}
}

// persist stores the result, tolerating both the duplicate-key race and
// storage outages. It runs on a detached context: a dropped client
// connection must not lose cache population.
func (s *Service) persist(ctx context.Context, result *Result, meta *ResponseMeta) {
	if s.store == nil {
		return
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := s.store.InsertOrReuse(storeCtx, result); err != nil {
		metrics.RecordPersistenceFailure()
		log.Printf("analysis: persistence failed (non-fatal): %v", err)
		meta.Warnings = append(meta.Warnings, "result could not be saved")
	}
}

// publishCompleted appends an audit event; failures are logged, never fatal
func (s *Service) publishCompleted(ctx context.Context, fingerprint string, source Source, model string) {
	if s.bus == nil {
		return
	}

	event := events.NewEvent("analysis.completed", "analysis", map[string]any{
		"fingerprint": fingerprint,
		"source":      source,
		"model":       model,
	})

	busCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.bus.Publish(busCtx, event); err != nil {
		log.Printf("analysis: audit publish failed: %v", err)
	}
}

// buildPrompt constructs the strict-JSON instruction for the model
func (s *Service) buildPrompt(req Request) string {
	patient, _ := json.MarshalIndent(req, "", "  ")

	return fmt.Sprintf(`You are ClinIA, a clinical decision support assistant.
Respond STRICTLY with a single JSON object and no text outside it, using this shape:
{
  "diagnosis": {"suspected": string, "certainty_level": "low"|"moderate"|"high", "justification": string},
  "treatments": [{"name": string, "justification": string, "dosage": string, "duration": string, "contraindications": [string], "monitoring": [string], "evidence_level": "A"|"B"|"C", "efficacy": number}],
  "alternatives": [{"name": string, "reason": string}],
  "red_flags": [string],
  "patient_summary": {"plain_language": string, "clinical_language": string},
  "meta": {"confidence_score": number}
}

Diagnosis: %s
Patient: %s`, req.Diagnosis, patient)
}
