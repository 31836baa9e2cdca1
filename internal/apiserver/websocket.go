package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

const (
	channelContext = "context."
	channelMatches = "matches."

	websocketPushInterval = 2 * time.Second
	websocketPingInterval = 30 * time.Second
	websocketReadTimeout  = 90 * time.Second
	websocketWriteTimeout = 10 * time.Second
	websocketMatchLimit   = 20
	websocketMaxChannels  = 64
)

type websocketSubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type websocketEnvelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	TS      int64           `json:"ts"`
}

var (
	errUnknownChannel  = errors.New("unknown channel")
	errInvalidChannel  = errors.New("invalid channel pubkey")
	errChannelFetch    = errors.New("failed to fetch channel data")
	errTooManyChannels = errors.New("too many subscriptions")
)

// feedChannel is a parsed subscription target: the context record itself or
// its newest matches.
type feedChannel struct {
	prefix string
	key    solana.PublicKey
}

func parseFeedChannel(raw string) (feedChannel, error) {
	raw = strings.TrimSpace(raw)
	for _, prefix := range []string{channelContext, channelMatches} {
		rest, ok := strings.CutPrefix(raw, prefix)
		if !ok {
			continue
		}
		key, err := solana.PublicKeyFromBase58(rest)
		if err != nil {
			return feedChannel{}, errInvalidChannel
		}
		return feedChannel{prefix: prefix, key: key}, nil
	}
	return feedChannel{}, errUnknownChannel
}

func (c feedChannel) String() string { return c.prefix + c.key.String() }

// feedControl is what the read loop hands to the writer: an ack, an error,
// or a channel to push right away.
type feedControl struct {
	envelope websocketEnvelope
	push     *feedChannel
}

// handleWebsocket serves the live feed. Clients send
// {"type":"subscribe","channel":"context.<pubkey>"} (or matches.<pubkey>)
// and receive an event whenever the channel's payload changes.
func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(req *http.Request) bool {
			return s.isOriginAllowed(strings.TrimSpace(req.Header.Get("Origin")))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	s.metrics.WSConnectionsActive.Inc()
	defer s.metrics.WSConnectionsActive.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Only this goroutine writes to conn; the read loop reports through
	// controls.
	controls := make(chan feedControl, 8)
	readDone := make(chan error, 1)
	go func() { readDone <- s.websocketReadLoop(ctx, conn, controls) }()

	subs := map[feedChannel][]byte{}
	pushTicker := time.NewTicker(websocketPushInterval)
	defer pushTicker.Stop()
	pingTicker := time.NewTicker(websocketPingInterval)
	defer pingTicker.Stop()

	push := func(channel feedChannel) error {
		last, ok := subs[channel]
		if !ok {
			return nil
		}
		data, err := s.websocketData(ctx, channel)
		if err != nil {
			return writeWebsocketJSON(conn, websocketEnvelope{Type: "error", Channel: channel.String(), Error: err.Error(), TS: time.Now().Unix()})
		}
		if data == nil || bytes.Equal(data, last) {
			return nil
		}
		subs[channel] = data
		return writeWebsocketJSON(conn, websocketEnvelope{Type: "event", Channel: channel.String(), Data: data, TS: time.Now().Unix()})
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case err := <-readDone:
			if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case control := <-controls:
			err = s.applyControl(conn, subs, control, push)
		case <-pushTicker.C:
			for channel := range subs {
				if err = push(channel); err != nil {
					break
				}
			}
		case <-pingTicker.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(websocketWriteTimeout))
		}
		if err != nil {
			s.logger.Debug("websocket write failed", "err", err)
			return
		}
	}
}

func (s *Service) applyControl(conn *websocket.Conn, subs map[feedChannel][]byte, control feedControl, push func(feedChannel) error) error {
	env := control.envelope
	switch {
	case env.Type == "subscribed" && control.push != nil:
		if _, ok := subs[*control.push]; !ok && len(subs) >= websocketMaxChannels {
			env = websocketEnvelope{Type: "error", Channel: env.Channel, Error: errTooManyChannels.Error()}
			break
		}
		if _, ok := subs[*control.push]; !ok {
			subs[*control.push] = []byte{}
		}
	case env.Type == "unsubscribed" && control.push != nil:
		delete(subs, *control.push)
		control.push = nil
	}
	env.TS = time.Now().Unix()
	if err := writeWebsocketJSON(conn, env); err != nil {
		return err
	}
	if env.Type == "subscribed" && control.push != nil {
		return push(*control.push)
	}
	return nil
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, controls chan<- feedControl) error {
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(websocketReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(websocketReadTimeout))
	})
	for {
		var message websocketSubscribeRequest
		if err := conn.ReadJSON(&message); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(websocketReadTimeout))

		control := feedControl{envelope: websocketEnvelope{Channel: strings.TrimSpace(message.Channel)}}
		op := strings.ToLower(strings.TrimSpace(message.Type))
		channel, err := parseFeedChannel(message.Channel)
		switch {
		case op != "subscribe" && op != "unsubscribe":
			control.envelope.Type, control.envelope.Error = "error", "unknown message type "+strconv.Quote(op)
		case err != nil:
			control.envelope.Type, control.envelope.Error = "error", err.Error()
		default:
			control.envelope.Type = op + "d"
			control.push = &channel
		}

		select {
		case controls <- control:
		case <-ctx.Done():
			return nil
		}
	}
}

// websocketData renders a channel's payload, or nil when there is nothing
// to push yet.
func (s *Service) websocketData(ctx context.Context, channel feedChannel) ([]byte, error) {
	payload, err := s.websocketPayload(ctx, channel)
	if err != nil || payload == nil {
		return nil, err
	}
	return json.Marshal(payload)
}

func (s *Service) websocketPayload(ctx context.Context, channel feedChannel) (any, error) {
	if channel.prefix == channelMatches {
		matches, err := s.store.ListMatches(ctx, channel.key, websocketMatchLimit)
		if err != nil {
			s.logger.Error("websocket matches fetch failed", "context", channel.key, "err", err)
			return nil, errChannelFetch
		}
		items := make([]matchView, 0, len(matches))
		for _, match := range matches {
			items = append(items, newMatchView(match))
		}
		return items, nil
	}

	record, ok, err := s.store.GetRecord(ctx, channel.key)
	if err != nil {
		s.logger.Error("websocket context fetch failed", "context", channel.key, "err", err)
		return nil, errChannelFetch
	}
	if !ok {
		return nil, nil
	}
	return newContextView(record.Record, record.UpdatedAt)
}

func writeWebsocketJSON(conn *websocket.Conn, payload websocketEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}
