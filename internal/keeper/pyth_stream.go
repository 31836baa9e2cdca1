package keeper

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type pythStreamEnvelope struct {
	Parsed []pythPriceUpdate `json:"parsed"`
}

type pythPriceUpdate struct {
	ID    string            `json:"id"`
	Price pythPriceSnapshot `json:"price"`
}

type pythPriceSnapshot struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// runPythPriceStream follows the Hermes SSE stream for feedIDs and writes
// every update into the cache, reconnecting until ctx ends.
func (s *Service) runPythPriceStream(ctx context.Context, feedIDs []string) {
	endpoint := strings.TrimSpace(s.cfg.PythStreamURL)
	if endpoint == "" || len(feedIDs) == 0 {
		s.logger.Warn("pyth price stream disabled due to missing endpoint or feed ids")
		return
	}

	reconnectDelay := s.cfg.ReconnectInterval
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}

	client := &http.Client{}
	s.logger.Info(
		"pyth price stream enabled",
		"endpoint", endpoint,
		"feeds", len(feedIDs),
		"reconnect_delay", reconnectDelay.String(),
	)

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		err := s.consumePythPriceStream(ctx, client, endpoint, feedIDs)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("pyth price stream disconnected", "err", err, "retry_in", reconnectDelay.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Service) consumePythPriceStream(ctx context.Context, client *http.Client, endpoint string, feedIDs []string) error {
	streamURL, err := buildPythStreamURL(endpoint, feedIDs)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("build pyth stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("open pyth stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("open pyth stream: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return s.readPythEvents(resp.Body)
}

// readPythEvents splits an SSE body into events and applies each one.
func (s *Service) readPythEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024), 16*1024*1024)

	var eventData strings.Builder
	flush := func() {
		if eventData.Len() == 0 {
			return
		}
		if err := s.processPythStreamEvent(eventData.String(), time.Now()); err != nil {
			s.logger.Warn("failed to process pyth stream event", "err", err)
		}
		eventData.Reset()
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if eventData.Len() > 0 {
			eventData.WriteByte('\n')
		}
		eventData.WriteString(payload)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pyth stream: %w", err)
	}
	return io.EOF
}

func (s *Service) processPythStreamEvent(rawEvent string, now time.Time) error {
	payload := strings.TrimSpace(rawEvent)
	if payload == "" || payload == "[DONE]" {
		return nil
	}

	var event pythStreamEnvelope
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("decode pyth stream event: %w", err)
	}

	for _, update := range event.Parsed {
		feedID := normalizeFeedID(update.ID)
		if feedID == "" {
			continue
		}
		price, err := scalePythPriceE6(update.Price.Price, update.Price.Expo)
		if err != nil || price == 0 {
			continue
		}
		s.feeds.setPrice(sourcePyth, feedID, price, now)
		s.metrics.KeeperSourceUpdates.WithLabelValues(sourcePyth).Inc()
	}
	return nil
}

func buildPythStreamURL(endpoint string, feedIDs []string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse pyth endpoint: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid pyth endpoint: %q", endpoint)
	}

	query := parsedURL.Query()
	query.Del("ids[]")
	for _, feedID := range feedIDs {
		query.Add("ids[]", feedID)
	}
	if strings.TrimSpace(query.Get("parsed")) == "" {
		query.Set("parsed", "true")
	}
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// normalizeFeedID lowercases a feed ID and strips any 0x prefix; Hermes
// reports IDs without it.
func normalizeFeedID(raw string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x")
}

// scalePythPriceE6 converts a Pyth mantissa and exponent to a 1e6
// fixed-point price, truncating extra precision.
func scalePythPriceE6(raw string, expo int32) (uint64, error) {
	mantissa, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse pyth price %q: %w", raw, err)
	}
	if mantissa.IsNegative() {
		return 0, fmt.Errorf("negative pyth price %s", raw)
	}
	scaled := mantissa.Shift(expo + 6).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("pyth price %s e%d overflows u64", raw, expo)
	}
	return scaled.BigInt().Uint64(), nil
}
