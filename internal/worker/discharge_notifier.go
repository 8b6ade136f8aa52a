package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
)

const (
	resubscribeDelay    = time.Second
	maxResubscribeDelay = 30 * time.Second
)

var (
	errSubscriptionClosed = errors.New("subscription closed")
	errNotSubscribed      = errors.New("discharge notifier is not subscribed")
)

// DischargeNotifier emails a visit summary to the patient when a
// VISIT_DISCHARGED event arrives on the broker.
type DischargeNotifier struct {
	broker   messaging.Broker
	channel  string
	patients repository.PatientRepository
	users    repository.UserRepository
	mailer   email.Service
	logger   zerolog.Logger

	subscribed atomic.Bool
	retryDelay time.Duration
	maxDelay   time.Duration
}

func NewDischargeNotifier(
	broker messaging.Broker,
	channel string,
	patients repository.PatientRepository,
	users repository.UserRepository,
	mailer email.Service,
	logger zerolog.Logger,
) *DischargeNotifier {
	return &DischargeNotifier{
		broker:   broker,
		channel:  channel,
		patients: patients,
		users:    users,
		mailer:   mailer,
		logger:   logger.With().Str("component", "discharge-notifier").Logger(),

		retryDelay: resubscribeDelay,
		maxDelay:   maxResubscribeDelay,
	}
}

// Start consumes until ctx is cancelled. A subscription that fails or closes
// is re-established with exponential backoff.
func (n *DischargeNotifier) Start(ctx context.Context) {
	delay := n.retryDelay
	for {
		established, err := n.consume(ctx)
		n.subscribed.Store(false)
		if ctx.Err() != nil {
			return
		}
		if established {
			delay = n.retryDelay
		}

		n.logger.Warn().Err(err).Dur("retry_in", delay).Msg("discharge subscription lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > n.maxDelay {
			delay = n.maxDelay
		}
	}
}

// Ready fails while there is no live subscription. It is used as a
// readiness check.
func (n *DischargeNotifier) Ready(context.Context) error {
	if !n.subscribed.Load() {
		return errNotSubscribed
	}
	return nil
}

func (n *DischargeNotifier) consume(ctx context.Context) (bool, error) {
	messages, err := n.broker.Subscribe(ctx, n.channel)
	if err != nil {
		return false, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}
	n.subscribed.Store(true)

	n.logger.Info().Str("channel", n.channel).Msg("listening for discharge events")
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return true, errSubscriptionClosed
			}
			if err := n.Handle(ctx, msg); err != nil {
				n.logger.Error().Err(err).Msg("failed to handle message")
			}
		}
	}
}

// Handle processes one broker message. Events other than VISIT_DISCHARGED
// and patients without a linked account are skipped.
func (n *DischargeNotifier) Handle(ctx context.Context, msg []byte) error {
	var envelope messaging.Envelope
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if envelope.EventType != model.EventVisitDischarged {
		return nil
	}

	var summary model.VisitDischargedPayload
	if err := json.Unmarshal(envelope.Payload, &summary); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", envelope.EventType, err)
	}

	logger := n.logger.With().
		Str("event_id", envelope.ID.String()).
		Str("visit_id", summary.VisitID.String()).
		Logger()

	patient, err := n.patients.GetByID(ctx, summary.PatientID)
	if err != nil {
		return fmt.Errorf("failed to load patient %s: %w", summary.PatientID, err)
	}
	if patient.UserID == nil {
		logger.Debug().Msg("patient has no linked account, skipping notification")
		return nil
	}

	user, err := n.lookupUser(ctx, *patient.UserID)
	if err != nil {
		return err
	}
	if user == nil || user.Email == "" {
		logger.Debug().Msg("patient account has no email, skipping notification")
		return nil
	}

	if err := n.mailer.SendDischargeSummary(ctx, user.Email, patient.Name, summary); err != nil {
		return err
	}
	logger.Info().Msg("sent discharge summary")
	return nil
}

func (n *DischargeNotifier) lookupUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := n.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}
