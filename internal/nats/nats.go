package nats

import (
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gate-services/configs"
)

type Nats struct {
	Url   string
	Token string
	Conn  *nats.Conn
}

// Connect dials the NATS server. The client reconnects forever after the
// initial connection; a dropped connection is logged but never ends the
// subscription on its own.
func Connect(name string, cfg config.NatsConfig) (*Nats, error) {
	n := &Nats{
		Url:   cfg.URL,
		Token: cfg.Token,
	}

	if n.Url == "" {
		n.Url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				log.Errorf("NATS async error on %s: %v", sub.Subject, err)
				return
			}
			log.Errorf("NATS async error: %v", err)
		}),
	}

	// if token provided
	if n.Token != "" {
		opts = append(opts, nats.Token(n.Token))
	}

	conn, err := nats.Connect(n.Url, opts...)
	if err != nil {
		return nil, err
	}

	n.Conn = conn

	return n, nil
}
