package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/config"
	"mediaroom/internal/control/controltest"
	"mediaroom/internal/device"
	"mediaroom/internal/discovery"
	"mediaroom/internal/hub"
	"mediaroom/internal/notify"
	"mediaroom/internal/notify/notifytest"
)

type apiHarness struct {
	box      *controltest.Box
	source   *notifytest.Source
	registry *hub.Registry
	server   *httptest.Server
}

func newAPIHarness(t *testing.T, tokens *hub.TokenService) *apiHarness {
	t.Helper()

	box := controltest.NewBox(t)
	source := notifytest.NewSource()
	listener := notify.NewListener(source, 0)
	t.Cleanup(func() { listener.Close() })

	cfg := config.NewDefaultConfig()
	cfg.Boxes = []config.BoxConfig{{ID: "den", Name: "Den", Address: box.Host(), Port: box.Port()}}
	cfg.Control.StateTimeout = 300 * time.Millisecond

	manager := hub.NewBoxManager(cfg, listener)
	require.NoError(t, manager.Initialize())
	t.Cleanup(manager.Shutdown)

	registry, err := hub.NewRegistry(0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go registry.Run(ctx, listener)

	scanner := discovery.NewScanner()
	scanner.Listener = listener

	api := hub.NewAPIServer(hub.APIOptions{
		Manager:  manager,
		Registry: registry,
		Scanner:  scanner,
		Listener: listener,
		Tokens:   tokens,
		Ignore:   []string{"10.0.0.99"},
	})

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return &apiHarness{box: box, source: source, registry: registry, server: server}
}

func (h *apiHarness) do(t *testing.T, method, path, body string, header http.Header) (*http.Response, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestAPI_Health(t *testing.T) {
	h := newAPIHarness(t, nil)

	resp, body := h.do(t, "GET", "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["box_count"])
}

func TestAPI_Boxes(t *testing.T) {
	h := newAPIHarness(t, nil)

	resp, body := h.do(t, "GET", "/api/v1/boxes", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	boxes := body["boxes"].([]interface{})
	first := boxes[0].(map[string]interface{})
	assert.Equal(t, "den", first["id"])
	assert.Equal(t, "Den", first["name"])
	assert.Equal(t, false, first["connected"])
}

func TestAPI_BoxAction(t *testing.T) {
	t.Run("presses keys once per nonce", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		header := http.Header{hub.NonceHeader: []string{"1691234567890-a1b2c3d4"}}

		for i := 0; i < 2; i++ {
			resp, body := h.do(t, "POST", "/api/v1/boxes/den/action", `{"type":"command","action":"Power"}`, header)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, "1691234567890-a1b2c3d4", resp.Header.Get(hub.NonceHeader))
		}

		assert.Equal(t, []string{"61440"}, h.box.Keys())
	})

	t.Run("duplicate arriving mid-action waits instead of pressing again", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		header := http.Header{hub.NonceHeader: []string{"1691234567890-0badcafe"}}

		var wg sync.WaitGroup
		bodies := make([]map[string]interface{}, 2)
		for i := range bodies {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Stagger so the second request lands while the first is typing digits
				time.Sleep(time.Duration(i) * 100 * time.Millisecond)
				_, bodies[i] = h.do(t, "POST", "/api/v1/boxes/den/action", `{"type":"command","action":"123"}`, header)
			}(i)
		}
		wg.Wait()

		for _, body := range bodies {
			assert.Equal(t, true, body["success"])
		}
		assert.Equal(t, []string{"49", "50", "51"}, h.box.Keys())
	})

	t.Run("without nonce every request is executed", func(t *testing.T) {
		h := newAPIHarness(t, nil)

		for i := 0; i < 2; i++ {
			_, body := h.do(t, "POST", "/api/v1/boxes/den/action", `{"type":"command","action":"7"}`, nil)
			assert.Equal(t, true, body["success"])
		}

		assert.Equal(t, []string{"55", "55"}, h.box.Keys())
	})

	t.Run("malformed nonce is rejected", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		header := http.Header{hub.NonceHeader: []string{"not-a-nonce"}}

		_, body := h.do(t, "POST", "/api/v1/boxes/den/action", `{"type":"command","action":"Power"}`, header)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "invalid nonce format", body["error"])
		assert.Empty(t, h.box.Keys())
	})

	t.Run("unknown command", func(t *testing.T) {
		h := newAPIHarness(t, nil)

		_, body := h.do(t, "POST", "/api/v1/boxes/den/action", `{"type":"command","action":"Warp"}`, nil)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "unknown command")
	})

	t.Run("unknown box", func(t *testing.T) {
		h := newAPIHarness(t, nil)

		resp, body := h.do(t, "POST", "/api/v1/boxes/attic/action", `{"type":"command","action":"Power"}`, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body["message"], "box not found")
	})
}

func TestAPI_BoxState(t *testing.T) {
	t.Run("reports the announced state", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		stop := h.source.Repeat(h.box.Host(), false, 20*time.Millisecond)
		defer stop()

		resp, body := h.do(t, "GET", "/api/v1/boxes/den/state", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "STANDBY", body["state"])
	})

	t.Run("silent box is off", func(t *testing.T) {
		h := newAPIHarness(t, nil)

		_, body := h.do(t, "GET", "/api/v1/boxes/den/state", "", nil)
		assert.Equal(t, "OFF", body["state"])
	})

	t.Run("unknown box", func(t *testing.T) {
		h := newAPIHarness(t, nil)

		resp, _ := h.do(t, "GET", "/api/v1/boxes/attic/state", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPI_SeenBoxes(t *testing.T) {
	h := newAPIHarness(t, nil)
	stop := h.source.Repeat("10.0.0.7", true, 20*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool {
		_, ok := h.registry.Get("10.0.0.7")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, body := h.do(t, "GET", "/api/v1/boxes/seen", "", nil)
	boxes := body["boxes"].([]interface{})
	require.Len(t, boxes, 1)

	seen := boxes[0].(map[string]interface{})
	assert.Equal(t, "10.0.0.7", seen["address"])
	assert.Equal(t, "PLAYING", seen["state"])
	assert.Equal(t, "105", seen["tune"].(map[string]interface{})["channel"])
}

func TestAPI_Discover(t *testing.T) {
	t.Run("returns announcing boxes minus the ignore list", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		stopA := h.source.Repeat("10.0.0.5", false, 20*time.Millisecond)
		defer stopA()
		stopB := h.source.Repeat("10.0.0.99", false, 20*time.Millisecond)
		defer stopB()

		resp, body := h.do(t, "GET", "/api/v1/discover?max_wait=150ms", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []interface{}{"10.0.0.5"}, body["boxes"])
	})

	t.Run("bad max_wait", func(t *testing.T) {
		h := newAPIHarness(t, nil)

		for _, q := range []string{"soon", "-1s", "0s"} {
			resp, _ := h.do(t, "GET", "/api/v1/discover?max_wait="+q, "", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})
}

func TestAPI_Events(t *testing.T) {
	h := newAPIHarness(t, nil)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/events?box=10.0.0.8"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	stopOther := h.source.Repeat("10.0.0.9", false, 10*time.Millisecond)
	defer stopOther()
	stop := h.source.Repeat("10.0.0.8", true, 20*time.Millisecond)
	defer stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg notify.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "10.0.0.8", msg.Sender)
	assert.True(t, msg.Tuned)
}

func TestAPI_Auth(t *testing.T) {
	tokens := hub.NewTokenService("test-secret", "mediaroom-hub", time.Hour)
	h := newAPIHarness(t, tokens)

	t.Run("health stays public", func(t *testing.T) {
		resp, _ := h.do(t, "GET", "/api/v1/health", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, _ := h.do(t, "GET", "/api/v1/boxes", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := tokens.GenerateToken("tester")
		require.NoError(t, err)

		resp, _ := h.do(t, "GET", "/api/v1/boxes", "", http.Header{"Authorization": []string{"Bearer " + token}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		token, err := hub.NewTokenService("other", "mediaroom-hub", time.Hour).GenerateToken("tester")
		require.NoError(t, err)

		resp, _ := h.do(t, "GET", "/api/v1/boxes", "", http.Header{"Authorization": []string{"Bearer " + token}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		resp, _ := h.do(t, "GET", "/api/v1/boxes", "", http.Header{"Authorization": []string{"Basic abc"}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestBoxManager_ProcessBoxAction(t *testing.T) {
	box := controltest.NewBox(t)
	listener := notify.NewListener(notifytest.NewSource(), 0)
	defer listener.Close()

	cfg := config.NewDefaultConfig()
	cfg.Boxes = []config.BoxConfig{{ID: "den", Address: box.Host(), Port: box.Port()}}

	manager := hub.NewBoxManager(cfg, listener)
	require.NoError(t, manager.Initialize())

	resp, err := manager.ProcessBoxAction(context.Background(), "den", []byte(`{"type":"command","action":"Mute"}`), hub.GenerateNonce())
	require.NoError(t, err)
	assert.Equal(t, &device.ActionResponse{Success: true, Data: map[string]interface{}{"command": "Mute"}}, resp)

	_, err = manager.ProcessBoxAction(context.Background(), "attic", nil, "")
	assert.ErrorIs(t, err, hub.ErrBoxNotFound)

	manager.Shutdown()
	assert.Equal(t, 0, manager.GetBoxCount())
}
