package keeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	signalReadTimeout  = 60 * time.Second
	signalPingInterval = 20 * time.Second
	signalWriteTimeout = 5 * time.Second
)

type signalSubscribe struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// signalFrame is one pushed observation. Data replaces the channel's
// previous observation wholesale.
type signalFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// runSignalStream keeps a websocket subscription to the signal channels
// open until ctx ends.
func (s *Service) runSignalStream(ctx context.Context, channels []string) {
	if s.cfg.SignalWSURL == "" || len(channels) == 0 {
		s.logger.Warn("signal stream disabled due to missing endpoint or channels")
		return
	}

	reconnectDelay := s.cfg.ReconnectInterval
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	s.logger.Info("signal stream enabled", "endpoint", s.cfg.SignalWSURL, "channels", len(channels))

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		err := s.consumeSignalStream(ctx, channels)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("signal stream disconnected", "err", err, "retry_in", reconnectDelay.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Service) consumeSignalStream(ctx context.Context, channels []string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.SignalWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial signal stream: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	if err := conn.WriteJSON(signalSubscribe{Op: "subscribe", Channels: channels}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(signalPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(signalWriteTimeout))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(signalWriteTimeout))
				writeMu.Unlock()
				if err != nil {
					s.logger.Warn("signal stream ping failed", "err", err)
				}
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(signalReadTimeout))
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(signalReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read signal stream: %w", err)
		}
		if err := s.processSignalFrame(message, time.Now()); err != nil {
			s.logger.Warn("failed to process signal frame", "err", err)
		}
	}
}

func (s *Service) processSignalFrame(message []byte, now time.Time) error {
	var frame signalFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return fmt.Errorf("decode signal frame: %w", err)
	}
	if frame.Channel == "" || len(frame.Data) == 0 {
		return nil
	}
	obs, err := parseObservation(frame.Data)
	if err != nil {
		return fmt.Errorf("channel %s: %w", frame.Channel, err)
	}
	s.feeds.set(sourceWS, frame.Channel, obs, now)
	s.metrics.KeeperSourceUpdates.WithLabelValues(sourceWS).Inc()
	return nil
}
