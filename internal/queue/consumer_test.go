package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAuditLine(t *testing.T) {
	line := FormatAuditLine(LedgerEvent{
		Type:           EventBatchExitCreated,
		LobbyName:      "Gate-A",
		UserID:         "guard-7",
		PreviousCount:  8,
		CurrentCount:   0,
		BatchID:        "b-1",
		PeopleCount:    12,
		Shortfall:      4,
		VolunteerCount: 2,
		OccurredAt:     "2025-11-30T09:00:00Z",
	})
	assert.Equal(t,
		`[2025-11-30T09:00:00Z] batch_exit.created | lobby="Gate-A" | user_id="guard-7" | count=8->0 | batch_id=b-1 | people=12 | volunteers=2 | shortfall=4`+"\n",
		line)

	reset := FormatAuditLine(LedgerEvent{Type: EventLobbyReset, LobbyName: "Gate-A", UserID: "cso-1", PreviousCount: 20, OccurredAt: "t"})
	assert.Equal(t, `[t] lobby.reset | lobby="Gate-A" | user_id="cso-1" | count=20->0`+"\n", reset)
}

func TestHandleMessageAppends(t *testing.T) {
	c := &AuditConsumer{LogPath: filepath.Join(t.TempDir(), "logs", "audit.log")}

	for _, ev := range []LedgerEvent{
		{Type: EventCountUpdated, LobbyName: "Gate-A", UserID: "guard-7", PreviousCount: 3, CurrentCount: 9, OccurredAt: "t1"},
		{Type: EventLobbyReset, LobbyName: "Gate-B", UserID: "cso-1", PreviousCount: 4, OccurredAt: "t2"},
	} {
		body, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, c.handleMessage(body))
	}

	data, err := os.ReadFile(c.LogPath)
	require.NoError(t, err)
	assert.Equal(t,
		`[t1] lobby.count_updated | lobby="Gate-A" | user_id="guard-7" | count=3->9`+"\n"+
			`[t2] lobby.reset | lobby="Gate-B" | user_id="cso-1" | count=4->0`+"\n",
		string(data))
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	c := &AuditConsumer{LogPath: filepath.Join(t.TempDir(), "audit.log")}
	for _, body := range []string{"not json", `{"type":"lobby.reset"}`} {
		err := c.handleMessage([]byte(body))
		assert.True(t, errors.Is(err, errMalformed), body)
	}
	_, err := os.Stat(c.LogPath)
	assert.True(t, os.IsNotExist(err))
}

type fakeDelivery struct {
	acked, nacked, requeued bool
}

func (d *fakeDelivery) Ack(bool) error {
	d.acked = true
	return nil
}

func (d *fakeDelivery) Nack(_, requeue bool) error {
	d.nacked, d.requeued = true, requeue
	return nil
}

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func TestSettle(t *testing.T) {
	requeueDelay = time.Millisecond
	t.Cleanup(func() { requeueDelay = time.Second })

	// the log path sits under a regular file, so every write fails
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	c := &AuditConsumer{LogPath: filepath.Join(blocker, "audit.log"), Logger: quietLogger()}
	good, err := json.Marshal(LedgerEvent{Type: EventLobbyReset, LobbyName: "Gate-A", OccurredAt: "t"})
	require.NoError(t, err)

	cases := []struct {
		name     string
		body     []byte
		requeued bool
	}{
		{name: "undecodable is dropped", body: []byte("{"), requeued: false},
		{name: "missing lobby is dropped", body: []byte(`{"type":"lobby.reset"}`), requeued: false},
		{name: "write failure is requeued", body: good, requeued: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &fakeDelivery{}
			assert.True(t, c.settle(context.Background(), d, c.handleMessage(tc.body)))
			assert.False(t, d.acked)
			assert.True(t, d.nacked)
			assert.Equal(t, tc.requeued, d.requeued)
		})
	}

	ok := &fakeDelivery{}
	c.LogPath = filepath.Join(t.TempDir(), "audit.log")
	assert.True(t, c.settle(context.Background(), ok, c.handleMessage(good)))
	assert.True(t, ok.acked)
	assert.False(t, ok.nacked)
}

func TestSettleStopsWhenCancelled(t *testing.T) {
	c := &AuditConsumer{Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &fakeDelivery{}
	assert.False(t, c.settle(ctx, d, errors.New("disk full")))
	assert.True(t, d.requeued)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Minute))
}
