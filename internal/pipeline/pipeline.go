// Package pipeline orchestrates the end-to-end decision: validation,
// feature computation, concurrent detector fan-out, ML/behavioral scoring,
// risk blending and policy evaluation, inside a hard 200ms deadline with
// soft per-stage budgets. Every stage degrades to a zero-valued result
// under budget pressure rather than failing the whole decision, following
// the worker pool's goroutine-per-unit-of-work shape with channels
// collecting results instead of a shared mutex.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/internal/detectors"
	"github.com/riskcore/fraudengine/internal/featurestore"
	"github.com/riskcore/fraudengine/internal/mlscore"
	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/pipelineerr"
	"github.com/riskcore/fraudengine/internal/policy"
	"github.com/riskcore/fraudengine/internal/riskscore"
	"github.com/riskcore/fraudengine/internal/store"
	"github.com/riskcore/fraudengine/internal/validate"
)

// slowRequestThresholdMs is the processing-time ceiling past which a
// decision is counted as slow, per §4.9 step 8.
const slowRequestThresholdMs = 200

// PolicyProvider supplies the currently active policy. Implemented by
// policyversion.Store.
type PolicyProvider interface {
	Active(ctx context.Context) (*models.Policy, error)
}

// Sink receives the finished decision for asynchronous, fire-and-forget
// persistence (evidence write, analytics). Implemented by asyncsink.Producer.
type Sink interface {
	Publish(ctx context.Context, event *models.PaymentEvent, snapshot *models.FeatureSnapshot, scores models.RiskScores, decision *models.Decision)
}

// Metrics receives pipeline observability counters. Optional: Decide skips
// it when nil.
type Metrics interface {
	SlowRequest()
}

// Pipeline wires every decisioning component together.
type Pipeline struct {
	Features   *featurestore.Store
	Detectors  []detectors.Detector
	ML         *mlscore.Scorer
	Risk       *riskscore.Scorer
	Policy     *policy.Engine
	Policies   PolicyProvider
	Idempotent *store.IdempotencyCache
	Sink       Sink
	Metrics    Metrics
	Budgets    Budgets

	// SafeMode, when true, bypasses validation, idempotency, scoring and
	// policy entirely and returns a fixed ALLOW decision with a single
	// SAFE_MODE reason — the kill switch for a dependency outage so wide
	// that scoring can't be trusted at all.
	SafeMode func() bool
}

// Decide runs the full pipeline for one payment event.
func (p *Pipeline) Decide(ctx context.Context, event *models.PaymentEvent) (*models.Decision, error) {
	start := time.Now()

	if p.SafeMode != nil && p.SafeMode() {
		decision := safeModeDecision(event, start)
		p.publish(event, featurestore.Zero(event.TransactionID), models.RiskScores{}, decision)
		return decision, nil
	}

	if err := validate.Event(event); err != nil {
		return nil, err
	}

	if event.IdempotencyKey != "" {
		fresh, existing, err := p.Idempotent.Reserve(ctx, event.IdempotencyKey)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.DependencyUnavailable, "idempotency", "reserve failed", err)
		}
		if !fresh {
			existing.IsCached = true
			return existing, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.Budgets.EndToEnd)
	defer cancel()

	policySet, err := p.Policies.Active(ctx)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.PolicyUndefined, "policy", "no active policy", err)
	}

	featureStart := time.Now()
	snapshot := p.computeFeatures(ctx, event)
	featureTimeMs := time.Since(featureStart).Milliseconds()

	scoringStart := time.Now()
	detectorResults := p.runDetectors(ctx, event, snapshot)
	mlResult := p.scoreML(ctx, event, snapshot)
	scores := p.Risk.Blend(detectorResults, mlResult, snapshot)
	scoringTimeMs := time.Since(scoringStart).Milliseconds()

	policyStart := time.Now()
	decision := p.evaluatePolicy(policySet, snapshot, scores, event, start)
	decision.FeatureTimeMs = featureTimeMs
	decision.ScoringTimeMs = scoringTimeMs
	decision.PolicyTimeMs = time.Since(policyStart).Milliseconds()
	decision.ProcessingTimeMs = time.Since(start).Milliseconds()

	if decision.ProcessingTimeMs > slowRequestThresholdMs && p.Metrics != nil {
		p.Metrics.SlowRequest()
	}

	if event.IdempotencyKey != "" {
		if err := p.Idempotent.Store(ctx, event.IdempotencyKey, decision); err != nil {
			log.Warn().Err(err).Str("transaction_id", event.TransactionID).Msg("failed to persist idempotency record")
		}
	}

	p.publish(event, snapshot, scores, decision)

	return decision, nil
}

func (p *Pipeline) computeFeatures(ctx context.Context, event *models.PaymentEvent) *models.FeatureSnapshot {
	featureCtx, cancel := context.WithTimeout(ctx, p.Budgets.Feature)
	defer cancel()

	resultCh := make(chan *models.FeatureSnapshot, 1)
	go func() {
		resultCh <- p.Features.Compute(featureCtx, event)
	}()

	select {
	case snap := <-resultCh:
		return snap
	case <-featureCtx.Done():
		log.Warn().Str("transaction_id", event.TransactionID).Msg("feature stage exceeded soft budget, degrading")
		return featurestore.Zero(event.TransactionID)
	}
}

func (p *Pipeline) runDetectors(ctx context.Context, event *models.PaymentEvent, snapshot *models.FeatureSnapshot) []models.DetectorResult {
	scoringCtx, cancel := context.WithTimeout(ctx, p.Budgets.Scoring)
	defer cancel()

	type indexed struct {
		idx    int
		result models.DetectorResult
	}
	resultCh := make(chan indexed, len(p.Detectors))

	for i, d := range p.Detectors {
		i, d := i, d
		go func() {
			resultCh <- indexed{idx: i, result: d.Detect(scoringCtx, event, snapshot)}
		}()
	}

	results := make([]models.DetectorResult, 0, len(p.Detectors))
	collected := 0
	for collected < len(p.Detectors) {
		select {
		case r := <-resultCh:
			results = append(results, r.result)
			collected++
		case <-scoringCtx.Done():
			log.Warn().Str("transaction_id", event.TransactionID).Int("collected", collected).Int("total", len(p.Detectors)).Msg("detector fan-out exceeded soft budget, degrading")
			return results
		}
	}
	return results
}

func (p *Pipeline) scoreML(ctx context.Context, event *models.PaymentEvent, snapshot *models.FeatureSnapshot) models.MLResult {
	scoringCtx, cancel := context.WithTimeout(ctx, p.Budgets.Scoring)
	defer cancel()

	resultCh := make(chan models.MLResult, 1)
	go func() {
		resultCh <- p.ML.Score(scoringCtx, event.Subscriber.UserID, event, snapshot)
	}()

	select {
	case r := <-resultCh:
		return r
	case <-scoringCtx.Done():
		log.Warn().Str("transaction_id", event.TransactionID).Msg("ML scoring exceeded soft budget, degrading to zero score")
		return models.MLResult{Variant: models.VariantHoldout, Confidence: 0}
	}
}

func (p *Pipeline) evaluatePolicy(policySet *models.Policy, snapshot *models.FeatureSnapshot, scores models.RiskScores, event *models.PaymentEvent, start time.Time) *models.Decision {
	hour := event.Timestamp.Hour()
	ctx := policy.BuildContext(snapshot, scores, hour)
	keys := policy.EntityKeys{
		Card:    event.CardToken,
		Device:  event.Device.DeviceID,
		IP:      event.Geo.IPAddress,
		Account: event.Subscriber.UserID,
		Service: event.ServiceID,
	}

	action, reasons := p.Policy.Evaluate(policySet, keys, ctx)

	decision := &models.Decision{
		TransactionID:  event.TransactionID,
		IdempotencyKey: event.IdempotencyKey,
		Action:         action,
		Scores:         scores,
		PolicyVersion:  policySet.Version,
		Reasons:        append(append([]models.Reason{}, scores.Reasons...), reasons...),
		Degraded:       snapshot.Degraded,
		DecidedAt:      event.Timestamp,
	}

	switch action {
	case models.ActionFriction:
		decision.FrictionType = frictionTypeFor(scores, snapshot)
		decision.FrictionMessage = models.FrictionMessages[decision.FrictionType]
	case models.ActionReview:
		decision.ReviewPriority = reviewPriorityFor(scores)
	}

	if snapshot.Degraded {
		decision.Reasons = append(decision.Reasons, models.Reason{
			Code: models.ReasonDegradedFeatures, Source: "pipeline", Severity: models.SeverityMedium,
			Detail: "feature snapshot was degraded before this decision",
		})
	}

	decision.ReviewNotes = reviewNotes(decision.Reasons)

	return decision
}

// reviewNotes joins the Detail strings of the highest-severity reasons, per
// §4.9 step 6.
func reviewNotes(reasons []models.Reason) string {
	if len(reasons) == 0 {
		return ""
	}
	highest := models.SeverityLow
	for _, r := range reasons {
		if severityRank(r.Severity) > severityRank(highest) {
			highest = r.Severity
		}
	}
	var notes []string
	for _, r := range reasons {
		if r.Severity == highest && r.Detail != "" {
			notes = append(notes, r.Detail)
		}
	}
	return strings.Join(notes, "; ")
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}

func frictionTypeFor(scores models.RiskScores, snapshot *models.FeatureSnapshot) models.FrictionType {
	switch {
	case snapshot.IsNewDeviceForUser || snapshot.IsNewCardForUser:
		return models.FrictionStepUp
	case scores.Confidence < 0.6:
		return models.FrictionOTP
	default:
		return models.Friction3DS
	}
}

func reviewPriorityFor(scores models.RiskScores) models.ReviewPriority {
	switch {
	case scores.Risk >= 0.8:
		return models.ReviewHigh
	case scores.Risk >= 0.6:
		return models.ReviewMedium
	default:
		return models.ReviewLow
	}
}

// safeModeDecision returns the fixed decision the kill switch emits: always
// ALLOW, with a single SAFE_MODE reason and no scoring performed at all.
func safeModeDecision(event *models.PaymentEvent, start time.Time) *models.Decision {
	return &models.Decision{
		TransactionID:  event.TransactionID,
		IdempotencyKey: event.IdempotencyKey,
		Action:         models.ActionAllow,
		Reasons: []models.Reason{{
			Code: models.ReasonSafeMode, Source: "pipeline", Severity: models.SeverityHigh, Detail: "safe mode active, scoring bypassed",
		}},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Degraded:         true,
		DecidedAt:        event.Timestamp,
	}
}

func (p *Pipeline) publish(event *models.PaymentEvent, snapshot *models.FeatureSnapshot, scores models.RiskScores, decision *models.Decision) {
	isDecline := decision.Action == models.ActionBlock
	go p.Features.UpdateProfiles(context.Background(), event, isDecline)

	if p.Sink == nil {
		return
	}
	go p.Sink.Publish(context.Background(), event, snapshot, scores, decision)
}
