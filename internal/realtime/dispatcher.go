package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"notification-hub/internal/metrics"
	"notification-hub/internal/models"
)

const defaultReplyTimeout = 5 * time.Second

// Conn is a transport the dispatcher can also read from.
type Conn interface {
	Transport
	// Receive blocks until the next inbound frame. Any error ends the connection.
	Receive(ctx context.Context) ([]byte, error)
}

// DataQuery is handed to the data source for a data_request.
type DataQuery struct {
	Kind       string
	Connection Connection
}

// DataSource answers data_request messages. Its failures become error replies.
type DataSource interface {
	Query(ctx context.Context, q DataQuery) (any, error)
}

// Dispatcher runs the inbound loop of every connection. It only ever touches
// the registry entry of the connection it is serving.
type Dispatcher struct {
	registry     *Registry
	resolver     IdentityResolver
	data         DataSource
	clock        clockwork.Clock
	metrics      *metrics.Metrics
	log          zerolog.Logger
	replyTimeout time.Duration
}

// NewDispatcher wires a dispatcher. data and m may be nil.
func NewDispatcher(registry *Registry, resolver IdentityResolver, data DataSource, clock clockwork.Clock, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		resolver:     resolver,
		data:         data,
		clock:        clock,
		metrics:      m,
		log:          log.With().Str("component", "dispatcher").Logger(),
		replyTimeout: defaultReplyTimeout,
	}
}

// Serve registers conn and processes its messages until the transport fails
// or ctx is cancelled. The connection is always unregistered on return.
func (d *Dispatcher) Serve(ctx context.Context, conn Conn) error {
	id := d.registry.Register(conn)
	log := d.log.With().Str("conn_id", id.String()).Logger()
	log.Info().Msg("client connected")

	defer func() {
		d.registry.Unregister(id)
		_ = conn.Close()
		log.Info().Msg("client disconnected")
	}()

	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		if err := d.registry.Touch(id); err != nil {
			// Reconciled out by a failed delivery.
			return nil
		}

		reply := d.Dispatch(ctx, id, frame)
		if err := d.reply(ctx, conn, reply); err != nil {
			return fmt.Errorf("reply %s: %w", reply.Type, err)
		}
	}
}

// Dispatch decodes one inbound frame and returns the reply for it.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID, frame []byte) models.Envelope {
	var in models.Envelope
	if err := json.Unmarshal(frame, &in); err != nil || in.Type == "" {
		if err == nil {
			err = errors.New("missing type")
		}
		d.metrics.ObserveInbound("malformed")
		d.log.Debug().Err(&DecodeError{Err: err}).Str("conn_id", id.String()).Msg("malformed message")
		return d.errorReply("malformed message")
	}
	d.metrics.ObserveInbound(inboundLabel(in.Type))

	switch in.Type {
	case models.MessageAuth:
		return d.handleAuth(ctx, id, in.Payload)
	case models.MessagePing:
		return d.envelope(models.MessagePong, models.PongPayload{ServerTime: d.clock.Now().UTC()})
	case models.MessageDataRequest:
		return d.handleDataRequest(ctx, id, in.Payload)
	default:
		return d.errorReply(fmt.Sprintf("unknown message type %q", in.Type))
	}
}

// inboundLabel keeps the metric label set fixed; the type is client supplied.
func inboundLabel(typ models.MessageType) string {
	switch typ {
	case models.MessageAuth, models.MessagePing, models.MessageDataRequest:
		return string(typ)
	default:
		return "unknown"
	}
}

func (d *Dispatcher) handleAuth(ctx context.Context, id uuid.UUID, raw json.RawMessage) models.Envelope {
	var req models.AuthPayload
	if err := decodePayload(raw, &req); err != nil {
		return d.errorReply("invalid auth payload")
	}

	ident, err := d.resolver.ResolveIdentity(ctx, req)
	if err != nil {
		return d.errorReply("authentication failed: " + err.Error())
	}

	if err := d.registry.Authenticate(id, ident.UserID, ident.Role); err != nil {
		d.log.Error().Err(err).Str("conn_id", id.String()).Msg("authenticate on unregistered connection")
		return d.errorReply("connection is not registered")
	}

	d.log.Info().Str("conn_id", id.String()).Str("user_id", ident.UserID).Str("role", ident.Role).Msg("client authenticated")
	return d.envelope(models.MessageAuthSuccess, models.AuthSuccessPayload{
		ConnectionID: id.String(),
		UserID:       ident.UserID,
		Role:         ident.Role,
	})
}

func (d *Dispatcher) handleDataRequest(ctx context.Context, id uuid.UUID, raw json.RawMessage) models.Envelope {
	var req models.DataRequestPayload
	if err := decodePayload(raw, &req); err != nil || req.Kind == "" {
		return d.errorReply("data_request requires a kind")
	}
	if d.data == nil {
		return d.errorReply("data requests are not available")
	}

	conn, ok := d.registry.Get(id)
	if !ok {
		return d.errorReply("connection is not registered")
	}

	data, err := d.data.Query(ctx, DataQuery{Kind: req.Kind, Connection: conn})
	if err != nil {
		d.log.Warn().Err(err).Str("conn_id", id.String()).Str("kind", req.Kind).Msg("data request failed")
		return d.errorReply(err.Error())
	}
	return d.envelope(models.MessageDataUpdate, models.DataUpdatePayload{Kind: req.Kind, Data: data})
}

func (d *Dispatcher) reply(ctx context.Context, conn Conn, msg models.Envelope) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.replyTimeout)
	defer cancel()
	return conn.Send(ctx, data)
}

func (d *Dispatcher) envelope(typ models.MessageType, payload any) models.Envelope {
	env, err := models.NewEnvelope(typ, payload, d.clock.Now())
	if err != nil {
		d.log.Error().Err(err).Str("type", string(typ)).Msg("marshal reply")
		return d.errorReply("internal error")
	}
	return env
}

func (d *Dispatcher) errorReply(message string) models.Envelope {
	env, _ := models.NewEnvelope(models.MessageError, models.ErrorPayload{Message: message}, d.clock.Now())
	return env
}

// decodePayload treats a missing payload as an empty object.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
