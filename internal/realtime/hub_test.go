package realtime

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/services"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func serveHub(t *testing.T, hub *Hub, current models.Transaction) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, current.SessionID, func() (*services.PaymentView, error) {
			view := services.NewPaymentView(current, time.Now(), time.Minute)
			return &view, nil
		})
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func session(status models.Status) models.Transaction {
	now := time.Now().UTC()
	return models.Transaction{
		SessionID: "s-1",
		Amount:    decimal.NewFromInt(100),
		Category:  "course",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestHub_PushesTransition(t *testing.T) {
	hub := NewHub(time.Minute, discard)
	conn := serveHub(t, hub, session(models.StatusAwaitingResult))

	first := readMessage(t, conn)
	assert.Equal(t, MessageStatus, first.Type)
	assert.Equal(t, models.StatusAwaitingResult, first.Data.Status)
	assert.Equal(t, services.StagePushAccepted, first.Data.PendingStage)
	assert.Equal(t, 1, hub.Subscribers("s-1"))

	receipt := "QFT1"
	done := session(models.StatusCompleted)
	done.ReceiptCode = &receipt
	hub.TransitionApplied(done)

	update := readMessage(t, conn)
	assert.Equal(t, models.StatusCompleted, update.Data.Status)
	assert.Equal(t, "QFT1", *update.Data.ReceiptCode)
	assert.Zero(t, hub.Subscribers("s-1"))

	// Terminal updates end the stream.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestHub_TerminalSnapshotCloses(t *testing.T) {
	hub := NewHub(time.Minute, discard)
	conn := serveHub(t, hub, session(models.StatusFailed))

	msg := readMessage(t, conn)
	assert.Equal(t, models.StatusFailed, msg.Data.Status)
	assert.Zero(t, hub.Subscribers("s-1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_IgnoresOtherSessions(t *testing.T) {
	hub := NewHub(time.Minute, discard)
	conn := serveHub(t, hub, session(models.StatusAwaitingResult))
	readMessage(t, conn)

	other := session(models.StatusCompleted)
	other.SessionID = "s-2"
	hub.TransitionApplied(other)

	assert.Equal(t, 1, hub.Subscribers("s-1"))
}

func TestHub_TransitionDuringSnapshotIsDelivered(t *testing.T) {
	hub := NewHub(time.Minute, discard)
	done := session(models.StatusCompleted)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, "s-1", func() (*services.PaymentView, error) {
			// The session completes after registration but the snapshot
			// still reflects the earlier read.
			stale := services.NewPaymentView(session(models.StatusAwaitingResult), time.Now(), time.Minute)
			hub.TransitionApplied(done)
			return &stale, nil
		})
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	msg := readMessage(t, conn)
	assert.Equal(t, models.StatusCompleted, msg.Data.Status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Zero(t, hub.Subscribers("s-1"))
}

func TestHub_SnapshotErrorClosesStream(t *testing.T) {
	hub := NewHub(time.Minute, discard)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, "s-1", func() (*services.PaymentView, error) {
			return nil, errors.New("store down")
		})
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Zero(t, hub.Subscribers("s-1"))
}
