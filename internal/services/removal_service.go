package services

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/engine"
	"github.com/wondr/rembg/internal/metrics"
	"github.com/wondr/rembg/internal/models"
	"go.uber.org/zap"
)

// Stage is the position of a request in the removal pipeline
type Stage int

const (
	StageAwaitingAuth Stage = iota
	StageAuthenticated
	StageCharged
	StageDecoded
	StageTransformed
	StageResponded
	StageErrored
)

var stageNames = [...]string{
	StageAwaitingAuth:  "awaiting_auth",
	StageAuthenticated: "authenticated",
	StageCharged:       "charged",
	StageDecoded:       "decoded",
	StageTransformed:   "transformed",
	StageResponded:     "responded",
	StageErrored:       "errored",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageResponded || s == StageErrored
}

type IdentityVerifier interface {
	Verify(authorization string) (models.Identity, error)
}

type CreditCharger interface {
	Charge(ctx context.Context, requestID, identity string) (int64, error)
	Refund(ctx context.Context, requestID, identity string)
}

type ImageCodec interface {
	Decode(payload string) (*image.NRGBA, error)
	Encode(img image.Image) (string, error)
}

// RemovalService runs one request through
// auth -> charge -> decode -> transform -> encode, refunding the charge when
// any step after it fails. Each external call is attempted once.
type RemovalService struct {
	verifier IdentityVerifier
	credits  CreditCharger
	codec    ImageCodec
	engine   engine.Engine
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewRemovalService(verifier IdentityVerifier, credits CreditCharger, codec ImageCodec, eng engine.Engine, log *zap.Logger, m *metrics.Metrics) *RemovalService {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &RemovalService{
		verifier: verifier,
		credits:  credits,
		codec:    codec,
		engine:   eng,
		metrics:  m,
		log:      log.Named("removal"),
	}
}

type removalRun struct {
	id       string
	stage    Stage
	identity string
	started  time.Time
}

func (s *RemovalService) advance(run *removalRun, next Stage) {
	s.metrics.ObserveStage(next.String(), run.started)
	s.log.Debug("[REMOVAL] stage transition",
		zap.String("request_id", run.id),
		zap.Stringer("from", run.stage),
		zap.Stringer("to", next))
	run.stage = next
	run.started = time.Now()
}

func (s *RemovalService) fail(run *removalRun, err error) error {
	from := run.stage
	run.stage = StageErrored
	s.metrics.Requests.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
	s.log.Warn("[REMOVAL] request failed",
		zap.String("request_id", run.id),
		zap.String("identity", run.identity),
		zap.Stringer("stage", from),
		zap.String("code", string(apperrors.CodeOf(err))),
		zap.Error(err))
	return err
}

// Process handles one removal request. The returned error is always an
// *apperrors.Error.
func (s *RemovalService) Process(ctx context.Context, requestID, authorization, payload string) (*models.RemovalResult, error) {
	run := &removalRun{id: requestID, stage: StageAwaitingAuth, started: time.Now()}

	identity, err := s.verifier.Verify(authorization)
	if err != nil {
		return nil, s.fail(run, err)
	}
	run.identity = identity.Key
	s.advance(run, StageAuthenticated)

	remaining, err := s.credits.Charge(ctx, requestID, identity.Key)
	if err != nil {
		return nil, s.fail(run, err)
	}
	s.advance(run, StageCharged)

	output, err := s.processCharged(ctx, run, payload)
	if err != nil {
		// refund happens before the error is surfaced; its own failure is
		// logged by the coordinator and never replaces err
		s.credits.Refund(ctx, requestID, identity.Key)
		return nil, s.fail(run, err)
	}

	s.advance(run, StageResponded)
	s.metrics.Requests.WithLabelValues("OK").Inc()
	s.log.Info("[REMOVAL] request completed",
		zap.String("request_id", requestID),
		zap.String("identity", identity.Key),
		zap.Int64("remaining", remaining))

	return &models.RemovalResult{
		DataReceived:     output,
		RemainingCredits: remaining,
	}, nil
}

func (s *RemovalService) processCharged(ctx context.Context, run *removalRun, payload string) (string, error) {
	input, err := s.codec.Decode(payload)
	if err != nil {
		return "", err
	}
	s.advance(run, StageDecoded)

	output, err := s.transform(ctx, input)
	if err != nil {
		return "", err
	}
	s.advance(run, StageTransformed)

	return s.codec.Encode(output)
}

// transform classifies every engine failure, including panics, as a
// TRANSFORM error so the caller still refunds.
func (s *RemovalService) transform(ctx context.Context, input image.Image) (output image.Image, err error) {
	if s.engine == nil {
		return nil, apperrors.New(apperrors.EngineUnavailable, "Background removal engine not loaded", nil)
	}

	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = apperrors.Newf(apperrors.EngineFailed, "Processing failed: engine panic: %v", r)
		}
	}()

	output, err = s.engine.RemoveBackground(ctx, input)
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindTransform {
			err = apperrors.New(apperrors.EngineFailed, "Processing failed", err)
		}
		return nil, err
	}
	if output == nil {
		return nil, apperrors.New(apperrors.EngineFailed, "Processing failed: engine returned no image", nil)
	}
	return output, nil
}
