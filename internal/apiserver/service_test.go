package apiserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/executor"
	"github.com/coldbell/matchers/internal/logging"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/matcher/solver"
	"github.com/coldbell/matchers/internal/metrics"
	"github.com/coldbell/matchers/internal/store"
)

type memBackend struct {
	*executor.MemoryStore
	keys []solana.PublicKey
}

func (m *memBackend) GetRecord(_ context.Context, pubkey solana.PublicKey) (store.StoredRecord, bool, error) {
	record, ok := m.Get(pubkey)
	if !ok {
		return store.StoredRecord{}, false, nil
	}
	return store.StoredRecord{Record: record, Magic: ctxrecord.ReadMagic(record.Data), UpdatedAt: 1_700_000_000}, true, nil
}

func (m *memBackend) ListRecords(ctx context.Context, program string, _ int) ([]store.StoredRecord, error) {
	out := make([]store.StoredRecord, 0)
	for _, key := range m.keys {
		record, ok, _ := m.GetRecord(ctx, key)
		if !ok || (program != "" && record.Program != program) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (m *memBackend) ListMatches(_ context.Context, contextKey solana.PublicKey, _ int) ([]store.StoredMatch, error) {
	out := make([]store.StoredMatch, 0)
	for i, event := range m.Matches() {
		if !contextKey.IsZero() && event.Context != contextKey {
			continue
		}
		out = append(out, store.StoredMatch{ID: int64(i + 1), MatchEvent: event})
	}
	slices.Reverse(out)
	return out, nil
}

func (m *memBackend) Close() error { return nil }

type apiFixture struct {
	service   *Service
	backend   *memBackend
	exec      *executor.Executor
	programID solana.PublicKey
	lp        solana.PublicKey
	ctx       solana.PublicKey
}

func newAPIFixture(t *testing.T, cfg config.APIServerConfig) *apiFixture {
	t.Helper()
	f := &apiFixture{
		backend:   &memBackend{MemoryStore: executor.NewMemoryStore()},
		programID: solana.NewWallet().PublicKey(),
		lp:        solana.NewWallet().PublicKey(),
		ctx:       solana.NewWallet().PublicKey(),
	}
	solverKey := solana.NewWallet().PublicKey()
	f.backend.keys = []solana.PublicKey{f.ctx}

	deployments, err := matcher.NewDeployments(map[string]solana.PublicKey{"solver": f.programID})
	require.NoError(t, err)
	collector := metrics.NewCollector()
	f.exec = executor.New(f.backend, executor.FixedClock{Slot: 42, UnixTimestamp: 1_700_000_000}, nil,
		executor.WithDeployments(deployments), executor.WithMetrics(collector))

	ctx := context.Background()
	initIx, err := solver.NewInitInstruction(f.programID, f.lp, f.ctx, solverKey, solver.InitParams{
		BaseSpreadBps: 20,
		MaxSpreadBps:  100,
		SolverFeeBps:  10,
	})
	require.NoError(t, err)
	_, err = f.exec.Invoke(ctx, executor.Request{Instruction: initIx, Create: true})
	require.NoError(t, err)

	updateIx, err := solver.NewOracleUpdateInstruction(f.programID, solverKey, f.ctx, 100_000_000)
	require.NoError(t, err)
	_, err = f.exec.Invoke(ctx, executor.Request{Instruction: updateIx})
	require.NoError(t, err)

	f.service = newService(cfg, logging.Discard(), f.backend, f.exec, collector)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.service.routes().ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func fieldByName(fields []fieldView, name string) (fieldView, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return fieldView{}, false
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[healthResponse](t, rec).OK)

	rec = f.do(t, http.MethodPost, "/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListContexts(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})

	rec := f.do(t, http.MethodGet, "/v1/contexts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[listResponse[contextView]](t, rec)
	require.Len(t, all.Items, 1)
	assert.Equal(t, f.ctx.String(), all.Items[0].Pubkey)
	assert.Equal(t, "solver", all.Items[0].Program)
	assert.Equal(t, f.programID.String(), all.Items[0].Owner)
	assert.Equal(t, 100, all.Limit)

	rec = f.do(t, http.MethodGet, "/v1/contexts?program=volatility", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[listResponse[contextView]](t, rec).Items)

	rec = f.do(t, http.MethodGet, "/v1/contexts?program=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/contexts?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContext(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})

	rec := f.do(t, http.MethodGet, "/v1/contexts/"+f.ctx.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[contextView](t, rec)
	assert.Equal(t, "505249564d415443", view.Magic)
	assert.Equal(t, uint64(42), view.Slot)

	price, ok := fieldByName(view.Fields, "oracle_price_e6")
	require.True(t, ok)
	assert.Equal(t, "100", price.Display)
	fee, ok := fieldByName(view.Fields, "solver_fee_bps")
	require.True(t, ok)
	assert.Equal(t, "0.1%", fee.Display)
	lp, ok := fieldByName(view.Fields, "lp_key")
	require.True(t, ok)
	assert.Equal(t, f.lp.String(), lp.Value)
	assert.Empty(t, lp.Display)

	rec = f.do(t, http.MethodGet, "/v1/contexts/"+solana.NewWallet().PublicKey().String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/contexts/not-a-key", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteSimulatesMatch(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})

	rec := f.do(t, http.MethodPost, "/v1/quote", `{"context":"`+f.ctx.String()+`","trade_size":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeBody[quoteResponse](t, rec)
	assert.Equal(t, "solver", quote.Program)
	assert.Equal(t, uint64(100_300_000), quote.PriceE6)
	assert.Equal(t, "100.3", quote.Price)
	assert.Equal(t, uint64(42), quote.Slot)

	record, ok := f.backend.Get(f.ctx)
	require.True(t, ok)
	assert.Zero(t, solver.TotalOrders.Get(record.Data))
	assert.Empty(t, f.backend.Matches())
}

func TestQuoteErrors(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})

	rec := f.do(t, http.MethodPost, "/v1/quote", `{"context":"`+f.ctx.String()+`","lp":"`+solana.NewWallet().PublicKey().String()+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, ctxrecord.Codespace, body.Codespace)
	assert.Equal(t, "authorization", body.Kind)

	rec = f.do(t, http.MethodPost, "/v1/quote", `{"context":"`+f.ctx.String()+`","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/quote", `{"context":"`+solana.NewWallet().PublicKey().String()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/quote", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListMatches(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})

	size := uint64(7)
	_, err := f.exec.Invoke(context.Background(), executor.Request{
		Instruction: solver.NewMatchInstruction(f.programID, f.lp, f.ctx, &size),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/matches?context="+f.ctx.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decodeBody[listResponse[matchView]](t, rec)
	require.Len(t, matches.Items, 1)
	assert.Equal(t, "100.3", matches.Items[0].Price)
	require.NotNil(t, matches.Items[0].TradeSize)
	assert.Equal(t, uint64(7), *matches.Items[0].TradeSize)

	rec = f.do(t, http.MethodGet, "/v1/matches?context=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{AllowedOrigins: []string{"https://app.example"}})
	handler := f.service.routes()

	req := httptest.NewRequest(http.MethodOptions, "/v1/contexts", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestMetrics(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})
	f.do(t, http.MethodGet, "/v1/contexts/"+f.ctx.String(), "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `matchers_api_requests_total{code="200",route="/v1/contexts/{pubkey}"} 1`)
	assert.Contains(t, rec.Body.String(), "matchers_executor_invocations_total")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/contexts/{pubkey}", routeLabel("/v1/contexts/abc"))
	assert.Equal(t, "/v1/quote", routeLabel("/v1/quote"))
	assert.Equal(t, "other", routeLabel("/admin"))
}

func TestWebsocketPushesContext(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})
	server := httptest.NewServer(f.service.routes())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	type envelope struct {
		Type    string      `json:"type"`
		Channel string      `json:"channel"`
		Data    contextView `json:"data"`
		Error   string      `json:"error"`
	}
	channel := channelContext + f.ctx.String()

	require.NoError(t, conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: channel}))
	var ack envelope
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, channel, ack.Channel)

	var event envelope
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "event", event.Type)
	assert.Equal(t, channel, event.Channel)
	assert.Equal(t, f.ctx.String(), event.Data.Pubkey)

	require.NoError(t, conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: "prices.sol"}))
	var rejected envelope
	require.NoError(t, conn.ReadJSON(&rejected))
	assert.Equal(t, "error", rejected.Type)
	assert.Equal(t, errUnknownChannel.Error(), rejected.Error)

	require.NoError(t, conn.WriteJSON(websocketSubscribeRequest{Type: "unsubscribe", Channel: channel}))
	var gone envelope
	require.NoError(t, conn.ReadJSON(&gone))
	assert.Equal(t, "unsubscribed", gone.Type)
}

func TestParseFeedChannel(t *testing.T) {
	key := solana.NewWallet().PublicKey()

	channel, err := parseFeedChannel(" matches." + key.String())
	require.NoError(t, err)
	assert.Equal(t, channelMatches, channel.prefix)
	assert.Equal(t, key, channel.key)
	assert.Equal(t, channelMatches+key.String(), channel.String())

	_, err = parseFeedChannel("prices.sol")
	assert.ErrorIs(t, err, errUnknownChannel)
	_, err = parseFeedChannel(channelContext + "nope")
	assert.ErrorIs(t, err, errInvalidChannel)
}

func TestWebsocketPayload(t *testing.T) {
	f := newAPIFixture(t, config.APIServerConfig{})
	ctx := context.Background()

	data, err := f.service.websocketData(ctx, feedChannel{prefix: channelContext, key: solana.NewWallet().PublicKey()})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = f.service.websocketData(ctx, feedChannel{prefix: channelMatches, key: f.ctx})
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	data, err = f.service.websocketData(ctx, feedChannel{prefix: channelContext, key: f.ctx})
	require.NoError(t, err)
	again, err := f.service.websocketData(ctx, feedChannel{prefix: channelContext, key: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
