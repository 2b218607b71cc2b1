package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DannyRuijters/webrtc-friends/internal/signaling"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, maxPeers int, joinWait time.Duration) *httptest.Server {
	t.Helper()
	logger := testLogger()
	registry := signaling.NewRegistry(maxPeers, logger)
	router := signaling.NewRouter(registry, logger)
	ts := httptest.NewServer(Handler(registry, router, joinWait, "", logger))
	t.Cleanup(ts.Close)
	return ts
}

func dialWs(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return m
}

// readType reads frames until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		m := readFrame(t, conn)
		if m["type"] == msgType {
			return m
		}
	}
	t.Fatalf("no %q frame arrived", msgType)
	return nil
}

// assertNoFrame asserts nothing arrives within a short window.
func assertNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var m map[string]any
	if err := conn.ReadJSON(&m); err == nil {
		t.Fatalf("unexpected frame: %v", m)
	}
	conn.SetReadDeadline(time.Time{})
}

func fetchReport(t *testing.T, ts *httptest.Server) signaling.RoomsReport {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("GET /api/rooms: %v", err)
	}
	defer resp.Body.Close()
	var report signaling.RoomsReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return report
}

func join(t *testing.T, conn *websocket.Conn, room, name string) map[string]any {
	t.Helper()
	sendJSON(t, conn, fmt.Sprintf(`{"roomId":%q,"peerName":%q}`, room, name))
	return readType(t, conn, "welcome")
}

func TestLobbyScenario(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	a := dialWs(t, ts)
	welcomeA := join(t, a, "lobby", "A")
	if welcomeA["peersInRoom"] != float64(0) || welcomeA["roomId"] != "lobby" {
		t.Fatalf("welcome A = %v, want 0 peers in lobby", welcomeA)
	}
	aID := welcomeA["clientId"].(float64)

	b := dialWs(t, ts)
	welcomeB := join(t, b, "lobby", "B")
	if welcomeB["peersInRoom"] != float64(1) {
		t.Errorf("welcome B peersInRoom = %v, want 1", welcomeB["peersInRoom"])
	}
	bID := welcomeB["clientId"].(float64)
	if bID == aID {
		t.Fatalf("duplicate client id %v", bID)
	}

	connected := readType(t, a, "peer-connected")
	if connected["clientId"] != bID || connected["peerName"] != "B" {
		t.Errorf("peer-connected = %v, want client %v named B", connected, bID)
	}
	if connected["peersInRoom"] != float64(2) {
		t.Errorf("peer-connected peersInRoom = %v, want 2", connected["peersInRoom"])
	}

	// A broadcasts an offer; B receives it with senderId, A does not see
	// its own message.
	sendJSON(t, a, `{"type":"offer","sdp":"v=0"}`)
	offer := readType(t, b, "offer")
	if offer["senderId"] != aID {
		t.Errorf("offer senderId = %v, want %v", offer["senderId"], aID)
	}
	if offer["sdp"] != "v=0" {
		t.Errorf("offer sdp = %v, want v=0", offer["sdp"])
	}
	// A does not see its own message: a get-peers sentinel sent after the
	// broadcast must be answered first on A's per-connection FIFO stream —
	// a self-delivered offer would have arrived before the peer-list.
	// (A timed-out read would poison the connection for the reads below,
	// so assertNoFrame cannot be used here.)
	sendJSON(t, a, `{"type":"get-peers"}`)
	if next := readFrame(t, a); next["type"] != "peer-list" {
		t.Fatalf("frame after own broadcast = %v, want peer-list", next)
	}

	// B leaves; A learns the room is empty now.
	b.Close()
	disconnected := readType(t, a, "peer-disconnected")
	if disconnected["clientId"] != bID {
		t.Errorf("peer-disconnected clientId = %v, want %v", disconnected["clientId"], bID)
	}
	if disconnected["peersInRoom"] != float64(0) {
		t.Errorf("peer-disconnected peersInRoom = %v, want 0", disconnected["peersInRoom"])
	}
}

func TestOverflowRedirectScenario(t *testing.T) {
	ts := newTestServer(t, 1, 5*time.Second)

	a := dialWs(t, ts)
	welcomeA := join(t, a, "room1", "A")
	if welcomeA["roomId"] != "room1" {
		t.Fatalf("welcome A roomId = %v, want room1", welcomeA["roomId"])
	}

	b := dialWs(t, ts)
	welcomeB := join(t, b, "room1", "B")
	if welcomeB["roomId"] != "room1_1" {
		t.Errorf("welcome B roomId = %v, want room1_1", welcomeB["roomId"])
	}
	redirect := readType(t, b, "room-redirect")
	if redirect["originalRoom"] != "room1" || redirect["assignedRoom"] != "room1_1" {
		t.Errorf("room-redirect = %v, want room1 -> room1_1", redirect)
	}

	// Overflow siblings are separate rooms: broadcasts never cross.
	sendJSON(t, a, `{"type":"offer","sdp":"v=0"}`)
	sendJSON(t, b, `{"type":"chat","text":"hello?"}`)
	assertNoFrame(t, a)
	assertNoFrame(t, b)
}

func TestJoinMessageDoublesAsFirstPayload(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	a := dialWs(t, ts)
	join(t, a, "lobby", "A")

	// B's very first frame is an offer; it joins and the offer reaches A.
	b := dialWs(t, ts)
	sendJSON(t, b, `{"type":"offer","roomId":"lobby","peerName":"B","sdp":"v=0"}`)
	readType(t, b, "welcome")

	offer := readType(t, a, "offer")
	if offer["sdp"] != "v=0" {
		t.Errorf("relayed first offer = %v, want sdp v=0", offer)
	}
}

func TestGetPeersAndDefaultRoom(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	a := dialWs(t, ts)
	sendJSON(t, a, `{}`) // no roomId: lands in "default"
	welcomeA := readType(t, a, "welcome")
	if welcomeA["roomId"] != "default" {
		t.Fatalf("welcome roomId = %v, want default", welcomeA["roomId"])
	}

	b := dialWs(t, ts)
	welcomeB := join(t, b, "default", "B")
	bID := welcomeB["clientId"]

	sendJSON(t, a, `{"type":"get-peers"}`)
	list := readType(t, a, "peer-list")
	peers, ok := list["peers"].([]any)
	if !ok || len(peers) != 1 || peers[0] != bID {
		t.Errorf("peer-list = %v, want exactly [%v]", list["peers"], bID)
	}
}

func TestMalformedFrameIsDroppedInActive(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	a := dialWs(t, ts)
	join(t, a, "lobby", "A")

	sendJSON(t, a, `this is not json`)

	// The session survives and keeps answering.
	sendJSON(t, a, `{"type":"get-peers"}`)
	readType(t, a, "peer-list")
}

func TestMalformedFirstFrameIsFatal(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	conn := dialWs(t, ts)
	sendJSON(t, conn, `this is not json`)

	// The server must hang up without admitting the client: no welcome,
	// no frame of any kind, just a close.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			break
		}
		t.Fatalf("received frame after malformed join message: %s", frame)
	}

	report := fetchReport(t, ts)
	if report.TotalClients != 0 || report.TotalRooms != 0 {
		t.Errorf("registry totals = (%d, %d) after rejected join, want (0, 0)",
			report.TotalClients, report.TotalRooms)
	}
}

func TestSlowConsumerIsCutOffIndividually(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	a := dialWs(t, ts)
	join(t, a, "lobby", "A")
	b := dialWs(t, ts)
	welcomeB := join(t, b, "lobby", "B")
	bID := welcomeB["clientId"]
	readType(t, a, "peer-connected")
	c := dialWs(t, ts)
	join(t, c, "lobby", "C")
	readType(t, a, "peer-connected")
	readType(t, b, "peer-connected")

	// C keeps draining; B stops reading entirely from here on.
	type drainResult struct {
		offers       int
		disconnected map[string]any
	}
	done := make(chan drainResult, 1)
	go func() {
		var res drainResult
		c.SetReadDeadline(time.Now().Add(15 * time.Second))
		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				done <- res
				return
			}
			switch m["type"] {
			case "offer":
				res.offers++
			case "peer-disconnected":
				// Keep draining: stopping here would back up this
				// connection too while the flood is still in flight.
				res.disconnected = m
			case "chat":
				done <- res
				return
			}
		}
	}()

	// Flood the room until B's send buffer and socket overflow. Each frame
	// is large so kernel buffers cannot absorb the whole burst.
	payload := strings.Repeat("x", 32*1024)
	frame := fmt.Sprintf(`{"type":"offer","sdp":%q}`, payload)
	for i := 0; i < 1200; i++ {
		if err := a.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write broadcast %d: %v", i, err)
		}
	}

	// B is cut off individually: A and C both see its departure and C's
	// own stream kept flowing throughout.
	disconnected := readType(t, a, "peer-disconnected")
	if disconnected["clientId"] != bID {
		t.Errorf("peer-disconnected clientId = %v, want %v", disconnected["clientId"], bID)
	}

	// End-of-flood marker: per-connection FIFO puts it after every
	// broadcast still in flight toward C.
	sendJSON(t, a, `{"type":"chat","text":"drained"}`)
	res := <-done
	if res.disconnected == nil {
		t.Fatal("draining room member never saw the slow consumer leave")
	}
	if res.disconnected["clientId"] != bID {
		t.Errorf("peer-disconnected at other member = %v, want client %v", res.disconnected, bID)
	}
	if res.offers == 0 {
		t.Error("draining room member received no broadcasts while the slow consumer stalled")
	}

	report := fetchReport(t, ts)
	if report.TotalClients != 2 {
		t.Errorf("TotalClients = %d after cutoff, want 2", report.TotalClients)
	}
	for _, peer := range report.Rooms["lobby"].Peers {
		if float64(peer.ID) == bID {
			t.Errorf("slow consumer %v still present in room report", bID)
		}
	}
}

func TestUnicastToDepartedPeerIsDropped(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	a := dialWs(t, ts)
	join(t, a, "lobby", "A")
	b := dialWs(t, ts)
	welcomeB := join(t, b, "lobby", "B")
	bID := int64(welcomeB["clientId"].(float64))
	readType(t, a, "peer-connected")

	b.Close()
	readType(t, a, "peer-disconnected")

	sendJSON(t, a, fmt.Sprintf(`{"type":"offer","targetId":%d}`, bID))
	assertNoFrame(t, a)
}

func TestJoinTimeoutClosesIdleConnection(t *testing.T) {
	ts := newTestServer(t, 32, 200*time.Millisecond)

	conn := dialWs(t, ts)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection survived the join timeout")
	}
}

func TestRoomsReportEndpoint(t *testing.T) {
	ts := newTestServer(t, 8, 5*time.Second)

	a := dialWs(t, ts)
	join(t, a, "lobby", "Ada")

	resp, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("GET /api/rooms: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report signaling.RoomsReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalClients != 1 || report.TotalRooms != 1 {
		t.Errorf("totals = (%d, %d), want (1, 1)", report.TotalClients, report.TotalRooms)
	}
	room := report.Rooms["lobby"]
	if room.Count != 1 || room.MaxPeers != 8 {
		t.Errorf("lobby = count %d max %d, want count 1 max 8", room.Count, room.MaxPeers)
	}
	if room.Peers[0].Name != "Ada" {
		t.Errorf("peer name = %q, want Ada", room.Peers[0].Name)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRootBannerWithoutStaticDir(t *testing.T) {
	ts := newTestServer(t, 32, 5*time.Second)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Signaling Server is running") {
		t.Errorf("banner = %q", body)
	}
}
