package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// dialPair starts a one-off websocket echo-less server and returns both the
// server-side *websocket.Conn (as accepted by the test's handler) and a
// client-side *websocket.Conn dialed against it, so Room can be tested
// against real sockets rather than fakes.
func dialPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverCh <- conn
	}))
	t.Cleanup(ts.Close)

	wsURL := "ws" + ts.URL[len("http"):]
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	s := <-serverCh
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func TestRoomJoinDrainsOfflineBuffer(t *testing.T) {
	r := newRoom("vault1")
	r.BufferOffline("dev1", []byte("frame-1"))
	r.BufferOffline("dev1", []byte("frame-2"))

	serverConn, _ := dialPair(t)
	drained := r.Join("dev1", serverConn)
	require.Equal(t, [][]byte{[]byte("frame-1"), []byte("frame-2")}, drained)

	// Offline buffer is consumed by Join.
	require.Empty(t, r.offline["dev1"])
	require.True(t, r.IsOnline("dev1"))
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	r := newRoom("vault1")
	aServer, aClient := dialPair(t)
	bServer, bClient := dialPair(t)

	r.Join("a", aServer)
	r.Join("b", bServer)

	r.Broadcast([]byte("hello"), "a")

	bClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := bClient.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "hello", string(msg))

	aClient.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = aClient.ReadMessage()
	require.Error(t, err)
}

func TestRoomDirectSend(t *testing.T) {
	r := newRoom("vault1")
	aServer, _ := dialPair(t)
	bServer, bClient := dialPair(t)
	r.Join("a", aServer)
	r.Join("b", bServer)

	ok := r.DirectSend("b", []byte("for-b"))
	require.True(t, ok)

	bClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := bClient.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "for-b", string(msg))

	require.False(t, r.DirectSend("ghost", []byte("nope")))
}

func TestRoomLeaveAndEmpty(t *testing.T) {
	r := newRoom("vault1")
	serverConn, _ := dialPair(t)
	r.Join("a", serverConn)
	require.False(t, r.Empty())

	r.Leave("a")
	require.True(t, r.Empty())
}

func TestRoomOfflineBufferEvictsOldest(t *testing.T) {
	r := newRoom("vault1")
	for i := 0; i < offlineBufferCap+10; i++ {
		r.BufferOffline("dev1", []byte{byte(i)})
	}
	require.Len(t, r.offline["dev1"], offlineBufferCap)
	require.Equal(t, byte(10), r.offline["dev1"][0][0])
}
