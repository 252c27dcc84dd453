package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/history"
	"github.com/llmgram/llmgram/internal/logger"
)

// DispatchRequest is one user message to resolve against a tier.
type DispatchRequest struct {
	ConversationKey      string
	Tier                 string
	Text                 string
	MediaRef             string
	SystemPromptOverride string
}

// Dispatcher walks a tier's candidates in order until one yields a usable
// response. It owns the runtime provider state the descriptors do not carry:
// auth-based disables and the rate budget consult.
type Dispatcher struct {
	set          *DescriptorSet
	registry     *AdapterRegistry
	store        *history.Store
	stats        *Tracker
	cfg          config.DispatchConfig
	systemPrompt string
	clock        Clock
	logger       logger.Logger

	mu       sync.Mutex
	disabled map[string]string
}

func NewDispatcher(
	set *DescriptorSet,
	registry *AdapterRegistry,
	store *history.Store,
	stats *Tracker,
	cfg config.DispatchConfig,
	systemPrompt string,
	clock Clock,
	log logger.Logger,
) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		set:          set,
		registry:     registry,
		store:        store,
		stats:        stats,
		cfg:          cfg,
		systemPrompt: systemPrompt,
		clock:        clock,
		logger:       log,
		disabled:     make(map[string]string),
	}
}

// Dispatch resolves one request. On success the user turn and the assistant
// reply are appended to history as a pair; on failure history is untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*NormalizedResult, error) {
	callID := uuid.NewString()
	log := d.logger.WithFields(logger.Fields{
		"call_id":      callID,
		"tier":         req.Tier,
		"conversation": req.ConversationKey,
	})

	tier, err := d.set.Tier(req.Tier)
	if err != nil {
		return nil, err
	}
	candidates, err := d.set.TierCandidates(req.Tier)
	if err != nil {
		return nil, err
	}

	eligible := make([]*ProviderDescriptor, 0, len(candidates))
	for _, descriptor := range candidates {
		if !descriptor.Enabled {
			continue
		}
		if reason := d.disabledReason(descriptor.ID); reason != "" {
			log.WithFields(logger.Fields{"provider": descriptor.ID, "reason": reason}).
				Debug("Skipping disabled provider")
			continue
		}
		// Skipped providers burn no attempt and no rate budget.
		if !d.stats.IsRateBudgetAvailable(descriptor.ID) {
			log.WithField("provider", descriptor.ID).Debug("Skipping provider over rate budget")
			continue
		}
		eligible = append(eligible, descriptor)
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: tier %s", ErrNoProvidersAvailable, req.Tier)
	}

	if d.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Deadline)
		defer cancel()
	}

	systemPrompt := d.systemPrompt
	if req.SystemPromptOverride != "" {
		systemPrompt = req.SystemPromptOverride
	}
	turns := d.store.History(req.ConversationKey)
	userTurn := history.NewUserTurn(req.Text, req.MediaRef, d.clock())

	var delay backoff.BackOff = &backoff.ZeroBackOff{}
	if d.cfg.BackoffInitial > 0 {
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = d.cfg.BackoffInitial
		exponential.MaxInterval = d.cfg.BackoffMax
		exponential.MaxElapsedTime = 0
		delay = exponential
	}

	trail := make([]AttemptFailure, 0, len(eligible))
	for i, descriptor := range eligible {
		if i > 0 {
			if err := d.waitBetweenAttempts(ctx, delay.NextBackOff()); err != nil {
				return nil, &AllProvidersFailedError{Attempts: trail, DeadlineExceeded: true}
			}
		}
		if ctx.Err() != nil {
			return nil, &AllProvidersFailedError{Attempts: trail, DeadlineExceeded: true}
		}

		result, failure := d.attempt(ctx, descriptor, tier, turns, userTurn, systemPrompt, log)
		if failure == nil {
			d.store.AppendPair(
				req.ConversationKey,
				userTurn,
				history.NewAssistantTurn(result.Text, descriptor.ID, d.clock()),
			)
			return result, nil
		}
		if failure.terminal {
			return nil, failure.err
		}
		trail = append(trail, AttemptFailure{ProviderID: descriptor.ID, Category: failure.category})
	}

	deadlineExceeded := ctx.Err() != nil
	failed := &AllProvidersFailedError{Attempts: trail, DeadlineExceeded: deadlineExceeded}
	log.WithError(failed).Warn("Dispatch exhausted all candidates")
	return nil, failed
}

// attemptFailure is the dispatcher-internal verdict on one failed attempt.
type attemptFailure struct {
	err      error
	category string
	terminal bool
}

func (d *Dispatcher) attempt(
	ctx context.Context,
	descriptor *ProviderDescriptor,
	tier *ModelTier,
	turns []history.ChatTurn,
	userTurn history.ChatTurn,
	systemPrompt string,
	log logger.Logger,
) (*NormalizedResult, *attemptFailure) {
	adapter, err := d.registry.Get(descriptor.ID)
	if err != nil {
		log.WithError(err).WithField("provider", descriptor.ID).Error("No adapter for provider")
		return nil, &attemptFailure{err: err, category: "no-adapter"}
	}

	request := BuildRequest(descriptor, turns, userTurn, systemPrompt)

	start := d.clock()
	raw, err := adapter.Send(ctx, request)
	latency := d.clock().Sub(start)

	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			transportErr = &TransportError{
				OriginalErr: err,
				ProviderID:  descriptor.ID,
				Category:    TransportNetwork,
			}
		}
		d.stats.RecordAttempt(descriptor.ID, outcomeForTransport(transportErr.Category), latency)
		if transportErr.DisablesProvider() {
			d.disable(descriptor.ID, string(transportErr.Category))
			log.WithField("provider", descriptor.ID).
				Warn("Provider disabled for this run after authentication failure")
		}
		log.WithError(transportErr).WithField("provider", descriptor.ID).Warn("Provider attempt failed")
		return nil, &attemptFailure{err: transportErr, category: string(transportErr.Category)}
	}

	result, err := ParseResponse(descriptor, raw)
	if err != nil {
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			parseErr = &ParseError{ProviderID: descriptor.ID, Reason: ParseMalformed, Message: err.Error()}
		}
		outcome := OutcomeMalformed
		if parseErr.Reason == ParseFiltered {
			outcome = OutcomeError
		}
		d.stats.RecordAttempt(descriptor.ID, outcome, latency)
		log.WithError(parseErr).WithField("provider", descriptor.ID).Warn("Provider response rejected")
		if !parseErr.Retryable() && !tier.AllowFilteredFailover {
			return nil, &attemptFailure{err: parseErr, category: string(parseErr.Reason), terminal: true}
		}
		return nil, &attemptFailure{err: parseErr, category: string(parseErr.Reason)}
	}

	d.stats.RecordAttempt(descriptor.ID, OutcomeSuccess, latency)
	log.WithFields(logger.Fields{
		"provider": descriptor.ID,
		"latency":  latency.String(),
		"tokens":   result.Usage.TotalTokens,
	}).Info("Dispatch succeeded")
	return result, nil
}

func (d *Dispatcher) waitBetweenAttempts(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Dispatcher) disable(providerID, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled[providerID] = reason
}

func (d *Dispatcher) disabledReason(providerID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disabled[providerID]
}

// DisabledProviders returns provider ids taken out of rotation this run,
// keyed to the reason.
func (d *Dispatcher) DisabledProviders() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.disabled))
	for id, reason := range d.disabled {
		out[id] = reason
	}
	return out
}

func outcomeForTransport(category TransportCategory) Outcome {
	switch category {
	case TransportTimeout:
		return OutcomeTimeout
	case TransportRateLimited:
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}
