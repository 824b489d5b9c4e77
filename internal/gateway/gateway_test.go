package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/covey/internal/client"
	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/economy"
	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/geom"
	"github.com/cory-johannsen/covey/internal/protocol"
	"github.com/cory-johannsen/covey/internal/storage"
	"github.com/cory-johannsen/covey/internal/storage/memory"
	"github.com/cory-johannsen/covey/internal/town"
)

type harness struct {
	srv       *httptest.Server
	towns     *town.Manager
	wsURL     string
	unhealthy atomic.Bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := memory.New()
	require.NoError(t, st.UpsertCatalogEntry(context.Background(), storage.CatalogEntry{Type: "dog", Price: 10}))
	policy, err := economy.NewPolicy(st, economy.Options{Rewards: map[string]int64{"tictactoe": 1}}, logger)
	require.NoError(t, err)
	maps, err := world.NewManager([]*world.TownMap{{
		Name: "plaza",
		Areas: []world.AreaDef{
			{ID: "lobby", Type: world.ConversationArea, Box: geom.Box{Width: 40, Height: 40}},
			{ID: "shop", Type: world.PetShopArea, Box: geom.Box{X: 100, Width: 20, Height: 20}},
		},
	}})
	require.NoError(t, err)
	towns := town.NewManager(maps, town.Options{Capacity: 2, StartingBalance: 5, BroadcastLeaderboards: true}, town.Deps{Store: st, Awards: policy, Logger: logger})
	t.Cleanup(towns.Close)

	h := &harness{towns: towns}
	s := New(Options{
		HTTP:   config.HTTPConfig{WriteTimeout: time.Second},
		Health: func(context.Context) error {
			if h.unhealthy.Load() {
				return errors.New("db down")
			}
			return nil
		},
	}, towns, logger)
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	h.wsURL = "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) create(t *testing.T, name string, public bool) town.CreatedTown {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/towns", createTownRequest{FriendlyName: name, IsPubliclyListed: public}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created town.CreatedTown
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func (h *harness) dial(t *testing.T, townID, name string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, h.wsURL, townID, name, client.Options{Logger: zap.NewNop(), CommandTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func awaitEvent(t *testing.T, c *client.Client, eventType string, v any) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Events():
			require.True(t, ok, "connection closed while waiting for %s", eventType)
			if msg.Type != eventType {
				continue
			}
			if v != nil {
				require.NoError(t, msg.Into(v))
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.unhealthy.Store(true)
	resp = h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestREST_TownLifecycle(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)
	h.create(t, "Secret", false)

	resp := h.do(t, http.MethodGet, "/towns", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []town.Listing
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, town.Listing{TownID: created.TownID, FriendlyName: "Plaza", MaximumOccupancy: 2}, list[0])

	name := "Renamed"
	resp = h.do(t, http.MethodPatch, "/towns/"+created.TownID, updateTownRequest{TownUpdatePassword: "nope", SettingsUpdate: town.SettingsUpdate{FriendlyName: &name}}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = h.do(t, http.MethodPatch, "/towns/"+created.TownID, updateTownRequest{TownUpdatePassword: created.TownUpdatePassword, SettingsUpdate: town.SettingsUpdate{FriendlyName: &name}}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/towns/"+created.TownID, deleteTownRequest{TownUpdatePassword: created.TownUpdatePassword}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodDelete, "/towns/"+created.TownID, deleteTownRequest{TownUpdatePassword: created.TownUpdatePassword}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestREST_CreateValidation(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/towns", createTownRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/towns", createTownRequest{FriendlyName: "x", Map: "atlantis"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/towns", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestWS_JoinChatAndCommands(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)

	alice := h.dial(t, created.TownID, "alice")
	assert.Equal(t, "Plaza", alice.Initialize().FriendlyName)
	assert.Len(t, alice.Initialize().Areas, 2)
	bob := h.dial(t, created.TownID, "bob")

	var joined protocol.Player
	awaitEvent(t, alice, protocol.EventPlayerJoined, &joined)
	assert.Equal(t, bob.ID(), joined.ID)

	require.NoError(t, alice.Chat("hello", ""))
	var chat protocol.ChatMessage
	awaitEvent(t, bob, protocol.EventChatMessage, &chat)
	assert.Equal(t, "hello", chat.Body)
	assert.Equal(t, alice.ID(), chat.Author)

	require.NoError(t, alice.Move(protocol.Location{X: 5, Y: 5, Rotation: protocol.Front}))
	var upd protocol.Area
	awaitEvent(t, bob, protocol.EventInteractableUpdate, &upd)
	assert.Equal(t, "lobby", upd.ID)
	assert.Equal(t, []string{alice.ID()}, upd.Occupants)

	_, err := alice.Command(context.Background(), "missing", protocol.JoinGame{})
	var ce *client.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "no such interactable missing", ce.Message)

	_, err = alice.Command(context.Background(), "shop", protocol.AdoptPet{PetType: "dog"})
	require.NoError(t, err)
	var notice protocol.InsufficientCurrency
	awaitEvent(t, alice, protocol.EventInsufficientCurrency, &notice)
	assert.Equal(t, int64(10), notice.Price)

	require.NoError(t, alice.Close())
	var gone protocol.Player
	awaitEvent(t, bob, protocol.EventPlayerDisconnect, &gone)
	assert.Equal(t, alice.ID(), gone.ID)
}

func TestWS_RESTSessionEndpoints(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)
	alice := h.dial(t, created.TownID, "alice")
	token := http.Header{SessionHeader: []string{alice.Initialize().SessionToken}}

	resp := h.do(t, http.MethodPost, "/towns/"+created.TownID+"/conversationAreas", conversationRequest{ID: "lobby", Topic: "cats"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/towns/"+created.TownID+"/conversationAreas", conversationRequest{ID: "lobby", Topic: "cats"}, token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/towns/"+created.TownID+"/conversationAreas", conversationRequest{ID: "lobby", Topic: "dogs"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/towns/"+created.TownID+"/conversationAreas", conversationRequest{ID: "nowhere", Topic: "dogs"}, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, alice.Chat("first", ""))
	awaitEvent(t, alice, protocol.EventChatMessage, nil)
	resp = h.do(t, http.MethodGet, "/towns/"+created.TownID+"/chat", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []protocol.ChatMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Body)
}

func TestWS_JoinRejections(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)

	_, err := client.Dial(context.Background(), h.wsURL, "no-such-town", "alice", client.Options{})
	var je *client.JoinError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, town.ErrTownNotFound.Error(), je.Message)

	h.dial(t, created.TownID, "a")
	h.dial(t, created.TownID, "b")
	_, err = client.Dial(context.Background(), h.wsURL, created.TownID, "c", client.Options{})
	require.ErrorAs(t, err, &je)
	assert.Equal(t, town.ErrTownFull.Error(), je.Message)

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.EventChatMessage, map[string]string{"body": "hi"})))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	var ev protocol.ErrorEvent
	require.NoError(t, msg.Into(&ev))
	assert.Equal(t, "first frame must be join", ev.Message)
}

func TestWS_DeleteClosesSessions(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)
	alice := h.dial(t, created.TownID, "alice")

	resp := h.do(t, http.MethodDelete, "/towns/"+created.TownID, deleteTownRequest{TownUpdatePassword: created.TownUpdatePassword}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	awaitEvent(t, alice, protocol.EventTownClosing, nil)
	select {
	case <-alice.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after town deletion")
	}
}

func TestCheckOrigin(t *testing.T) {
	s := New(Options{HTTP: config.HTTPConfig{AllowedOrigins: []string{"https://covey.town"}}}, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://covey.town")
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.checkOrigin(req))

	s.opts.AnyOrigin = true
	assert.True(t, s.checkOrigin(req))
}

func TestWS_ClientMirrorsTown(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)
	alice := h.dial(t, created.TownID, "alice")
	bob := h.dial(t, created.TownID, "bob")

	awaitEvent(t, alice, protocol.EventPlayerJoined, nil)
	require.Len(t, alice.Players(), 2)
	assert.Len(t, alice.Initialize().Players, 2)
	got, ok := alice.Player(bob.ID())
	require.True(t, ok)
	assert.Equal(t, "bob", got.UserName)

	require.NoError(t, bob.Move(protocol.Location{X: 5, Y: 5, Rotation: protocol.Back}))
	awaitEvent(t, alice, protocol.EventInteractableUpdate, nil)
	lobby, ok := alice.Area("lobby")
	require.True(t, ok)
	assert.Equal(t, []string{bob.ID()}, lobby.Occupants)
	awaitEvent(t, alice, protocol.EventPlayerMoved, nil)
	moved, ok := alice.Player(bob.ID())
	require.True(t, ok)
	assert.Equal(t, "lobby", moved.Location.InteractableID)

	assert.Eventually(t, func() bool {
		bal, ok := alice.Balance()
		return ok && bal == 5
	}, 2*time.Second, 10*time.Millisecond)

	left := make(chan []protocol.Player, 1)
	dispose := alice.OnPlayersChanged(func(ps []protocol.Player) {
		select {
		case left <- ps:
		default:
		}
	})
	defer dispose()
	require.NoError(t, bob.Close())
	select {
	case ps := <-left:
		require.Len(t, ps, 1)
		assert.Equal(t, alice.ID(), ps[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("player list not updated after leave")
	}
	assert.Len(t, alice.Players(), 1)
}

func TestREST_Leaderboard(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "Plaza", true)
	alice := h.dial(t, created.TownID, "alice")

	var boards protocol.Leaderboards
	require.Eventually(t, func() bool {
		resp := h.do(t, http.MethodGet, "/towns/"+created.TownID+"/leaderboard", nil, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		boards = protocol.Leaderboards{}
		return json.NewDecoder(resp.Body).Decode(&boards) == nil && len(boards.Current.Rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.LeaderboardRow{PlayerID: alice.ID(), UserName: "alice", Currency: 5}, boards.Current.Rows[0])
	assert.Equal(t, []string{alice.ID()}, boards.AllTime.PlayerIDs)

	resp := h.do(t, http.MethodGet, "/towns/nowhere/leaderboard", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
