package authority

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultRelaySubject is where session updates land when no subject is
// configured.
const DefaultRelaySubject = "clocktower.session.updates"

// Relay mirrors every broadcast update onto a NATS subject so external
// tooling (recorders, overlays, bots) can observe the session without
// holding a WebSocket. Purely a tap: the session works identically without
// one.
type Relay struct {
	nc      *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewRelay connects to a NATS server. Reconnection is left to the NATS
// client; updates published while disconnected are dropped, which is fine
// for a tap with no delivery guarantees.
func NewRelay(url, subject string, log zerolog.Logger) (*Relay, error) {
	rlog := log.With().Str("component", "relay").Logger()
	if subject == "" {
		subject = DefaultRelaySubject
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			rlog.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			rlog.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			rlog.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	rlog.Info().Str("url", url).Str("subject", subject).Msg("relay connected")
	return &Relay{nc: nc, subject: subject, log: rlog}, nil
}

// Publish mirrors one encoded update. Failures are logged, never fatal.
func (r *Relay) Publish(update []byte) {
	if err := r.nc.Publish(r.subject, update); err != nil {
		r.log.Warn().Err(err).Msg("relay publish failed")
	}
}

// Close drains the connection.
func (r *Relay) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}
