package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/observability"
)

const gradingEventBufferSize = 16

// GradingEventHub delivers grading events to connected users on this node
// and relays them to other nodes over one transport: NATS when connected,
// Redis otherwise.
type GradingEventHub interface {
	GradingEventPublisher
	Subscribe(userID uint) (<-chan dto.GradingEvent, func())
	Start(ctx context.Context)
}

type gradingEventHub struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string

	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.GradingEvent]struct{}
}

type gradingEnvelope struct {
	Source string           `json:"source"`
	Event  dto.GradingEvent `json:"event"`
	SentAt time.Time        `json:"sent_at"`
}

// NewGradingEventHub constructs a hub. redisClient and natsConn may be nil;
// when both are given only NATS carries events between nodes.
func NewGradingEventHub(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) GradingEventHub {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":grading"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".grading"
	}
	if natsConn != nil && subject != "" {
		redisClient = nil
		channel = ""
	}

	return &gradingEventHub{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "grading_events").Logger(),
		nodeID:       uuid.NewString(),
		subscribers:  make(map[uint]map[chan dto.GradingEvent]struct{}),
	}
}

func (h *gradingEventHub) Start(ctx context.Context) {
	if h.redis != nil && h.redisChannel != "" {
		go h.consumeRedis(ctx)
	}
	if h.nats != nil && h.natsSubject != "" {
		h.consumeNATS(ctx)
	}
}

func (h *gradingEventHub) Publish(ctx context.Context, event dto.GradingEvent) {
	h.broadcast(event)

	if err := h.relay(ctx, event); err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to relay grading event")
	}
}

func (h *gradingEventHub) Subscribe(userID uint) (<-chan dto.GradingEvent, func()) {
	ch := make(chan dto.GradingEvent, gradingEventBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[userID]; !ok {
		h.subscribers[userID] = make(map[chan dto.GradingEvent]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()
	observability.GradingStreamClients().Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[userID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, userID)
				}
			}
			close(ch)
			h.mu.Unlock()
			observability.GradingStreamClients().Dec()
		})
	}

	return ch, cancel
}

func (h *gradingEventHub) broadcast(event dto.GradingEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range event.Recipients() {
		for ch := range h.subscribers[userID] {
			select {
			case ch <- event:
			default:
				h.logger.Debug().Uint("user_id", userID).Msg("dropping grading event for slow consumer")
			}
		}
	}
}

func (h *gradingEventHub) relay(ctx context.Context, event dto.GradingEvent) error {
	if (h.redis == nil || h.redisChannel == "") && (h.nats == nil || h.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(gradingEnvelope{Source: h.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if h.redis != nil && h.redisChannel != "" {
		if err := h.redis.Publish(ctx, h.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *gradingEventHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			h.logger.Error().Err(err).Msg("grading redis subscription closed")
			return
		}
		h.handleRemote([]byte(msg.Payload))
	}
}

func (h *gradingEventHub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handleRemote(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats grading subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain grading nats subscription")
		}
	}()
}

func (h *gradingEventHub) handleRemote(payload []byte) {
	var envelope gradingEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn().Err(err).Msg("invalid grading event payload")
		return
	}

	if envelope.Source == h.nodeID {
		return
	}

	h.broadcast(envelope.Event)
}
