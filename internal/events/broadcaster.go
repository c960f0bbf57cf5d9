package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// EnvelopeType tags messages pushed to websocket subscribers
type EnvelopeType string

const (
	EnvelopeControlEvent   EnvelopeType = "control-event"
	EnvelopeSyncAlert      EnvelopeType = "sync-alert"
	EnvelopeSyncStatus     EnvelopeType = "sync-status"
	EnvelopeParameterValue EnvelopeType = "parameter-value"
)

// DefaultWriteTimeout bounds a single websocket write
const DefaultWriteTimeout = 5 * time.Second

// Envelope is the websocket wire format
type Envelope struct {
	Type EnvelopeType `json:"type"`
	Data interface{}  `json:"data"`
}

// ParameterValueData is the payload of a parameter-value envelope.
type ParameterValueData struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
}

var broadcastSendsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "phonoglyph_event_broadcasts_total",
		Help: "Websocket event sends, by envelope type and result",
	},
	[]string{"type", "result"},
)

type subscriber struct {
	conn   *websocket.Conn
	ctx    context.Context
	logger *zerolog.Logger
}

// Broadcaster pushes envelopes to websocket subscribers. Subscribers whose
// writes fail are dropped.
type Broadcaster struct {
	subscribers  map[string]*subscriber
	mutex        sync.RWMutex
	logger       *zerolog.Logger
	writeTimeout time.Duration
}

// NewBroadcaster creates a broadcaster. A non-positive timeout uses DefaultWriteTimeout.
func NewBroadcaster(logger zerolog.Logger, writeTimeout time.Duration) *Broadcaster {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	l := logger.With().Str("component", "event-broadcaster").Logger()
	return &Broadcaster{
		subscribers:  make(map[string]*subscriber),
		logger:       &l,
		writeTimeout: writeTimeout,
	}
}

// Subscribe adds a websocket connection. An existing entry with the same id is replaced.
func (b *Broadcaster) Subscribe(connectionID string, conn *websocket.Conn, ctx context.Context, logger *zerolog.Logger) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, exists := b.subscribers[connectionID]; exists {
		b.logger.Debug().Str("connectionID", connectionID).Msg("duplicate events subscription detected; replacing existing entry")
		delete(b.subscribers, connectionID)
	}
	if logger == nil {
		logger = b.logger
	}

	b.subscribers[connectionID] = &subscriber{
		conn:   conn,
		ctx:    ctx,
		logger: logger,
	}
	b.logger.Debug().Str("connectionID", connectionID).Msg("events subscription added")
}

// Unsubscribe removes a websocket connection
func (b *Broadcaster) Unsubscribe(connectionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.subscribers, connectionID)
	b.logger.Debug().Str("connectionID", connectionID).Msg("events subscription removed")
}

// SubscriberCount returns the number of subscribed connections
func (b *Broadcaster) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// HandleEvent forwards a bus event to subscribers. It satisfies Handler.
func (b *Broadcaster) HandleEvent(e Event) error {
	b.Broadcast(EnvelopeControlEvent, e)
	return nil
}

// Broadcast sends data wrapped in an envelope of type t to every subscriber.
func (b *Broadcaster) Broadcast(t EnvelopeType, data interface{}) {
	b.broadcast(Envelope{Type: t, Data: data})
}

func (b *Broadcaster) broadcast(env Envelope) {
	b.mutex.RLock()
	if len(b.subscribers) == 0 {
		b.mutex.RUnlock()
		return
	}
	subscribersCopy := make(map[string]*subscriber, len(b.subscribers))
	for id, sub := range b.subscribers {
		subscribersCopy[id] = sub
	}
	b.mutex.RUnlock()

	var failedSubscribers []string
	for connectionID, sub := range subscribersCopy {
		if !b.sendToSubscriber(sub, env) {
			failedSubscribers = append(failedSubscribers, connectionID)
		}
	}

	if len(failedSubscribers) > 0 {
		b.mutex.Lock()
		for _, connectionID := range failedSubscribers {
			delete(b.subscribers, connectionID)
			b.logger.Warn().Str("connectionID", connectionID).Msg("removed failed events subscriber")
		}
		b.mutex.Unlock()
	}
}

func (b *Broadcaster) sendToSubscriber(sub *subscriber, env Envelope) bool {
	if sub.ctx.Err() != nil {
		broadcastSendsTotal.WithLabelValues(string(env.Type), "cancelled").Inc()
		return false
	}

	ctx, cancel := context.WithTimeout(sub.ctx, b.writeTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, sub.conn, env); err != nil {
		// closed connections are expected when clients go away
		if strings.Contains(err.Error(), "use of closed network connection") ||
			strings.Contains(err.Error(), "connection reset by peer") ||
			strings.Contains(err.Error(), "context canceled") {
			sub.logger.Debug().Err(err).Msg("websocket connection closed during event send")
		} else {
			sub.logger.Warn().Err(err).Msg("failed to send event to subscriber")
		}
		broadcastSendsTotal.WithLabelValues(string(env.Type), "error").Inc()
		return false
	}

	broadcastSendsTotal.WithLabelValues(string(env.Type), "ok").Inc()
	return true
}
