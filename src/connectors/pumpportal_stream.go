package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/externalmodel"
	"limitbot/src/mapper"
)

// NativePriceSource provides the fiat price of the native currency.
type NativePriceSource interface {
	NativePrice(ctx context.Context) (decimal.Decimal, error)
}

type streamPrice struct {
	inNative decimal.Decimal
	at       time.Time
}

// PriceStream keeps the last traded price of subscribed tokens from the
// PumpPortal data websocket. Prices older than maxAge are treated as
// unavailable so the caller falls through to a polling source.
type PriceStream struct {
	url    string
	native NativePriceSource
	maxAge time.Duration
	dialer *websocket.Dialer
	log    *logger.Entry

	mu     sync.RWMutex
	prices map[string]streamPrice
	subs   map[string]struct{}

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewPriceStream(url string, native NativePriceSource, maxAge time.Duration) *PriceStream {
	return &PriceStream{
		url:    url,
		native: native,
		maxAge: maxAge,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		log:    logger.WithField("component", "PriceStream"),
		prices: make(map[string]streamPrice),
		subs:   make(map[string]struct{}),
	}
}

// GetPrice returns the fiat price of the last trade seen for the token. An
// unknown token is subscribed so later cycles can use the stream.
func (s *PriceStream) GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	s.mu.RLock()
	p, ok := s.prices[tokenAddress]
	s.mu.RUnlock()

	if !ok || time.Since(p.at) > s.maxAge {
		if err := s.Subscribe(tokenAddress); err != nil {
			s.log.WithError(err).Debug("subscribe failed")
		}
		return decimal.Zero, fmt.Errorf("%w for %s: no recent trade on stream", ErrPriceUnavailable, tokenAddress)
	}

	nativePrice, err := s.native.NativePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return p.inNative.Mul(nativePrice), nil
}

// Subscribe adds tokens to the trade subscription.
func (s *PriceStream) Subscribe(tokens ...string) error {
	var fresh []string
	s.mu.Lock()
	for _, t := range tokens {
		if _, ok := s.subs[t]; !ok {
			s.subs[t] = struct{}{}
			fresh = append(fresh, t)
		}
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	return s.send(externalmodel.PumpPortalSubscribe{Method: "subscribeTokenTrade", Keys: fresh})
}

func (s *PriceStream) send(msg interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.WriteJSON(msg)
}

func (s *PriceStream) subscribed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subs))
	for t := range s.subs {
		out = append(out, t)
	}
	return out
}

// Run connects and reads trades until ctx is done, reconnecting with backoff.
func (s *PriceStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).WithField("retry_in", backoff.String()).Warn("price stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *PriceStream) runOnce(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if keys := s.subscribed(); len(keys) > 0 {
		if err := s.send(externalmodel.PumpPortalSubscribe{Method: "subscribeTokenTrade", Keys: keys}); err != nil {
			return fmt.Errorf("ws subscribe failed: %w", err)
		}
	}

	s.log.Info("price stream connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}
		s.handleMessage(msg)
	}
}

func (s *PriceStream) handleMessage(msg []byte) {
	if len(msg) == 0 || msg[0] != '{' {
		return
	}

	var ev externalmodel.PumpPortalTradeEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		s.log.WithError(err).Debug("ws json unmarshal error")
		return
	}
	if ev.Mint == "" {
		// subscription acks and other control messages
		return
	}

	price, ok := mapper.TradePriceInNative(&ev)
	if !ok {
		return
	}

	s.mu.Lock()
	s.prices[ev.Mint] = streamPrice{inNative: price, at: time.Now()}
	s.mu.Unlock()
}
