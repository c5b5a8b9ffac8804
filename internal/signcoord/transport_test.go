package signcoord

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/bridge-validator/internal/bus"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return "127.0.0.1:" + strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
}

func TestBusTransportRoundTripsRounds(t *testing.T) {
	peers := map[int]string{0: freeAddr(t), 1: freeAddr(t)}
	b0 := bus.New(0, peers, "secret")
	b1 := bus.New(1, peers, "secret")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for id, b := range map[int]*bus.Bus{0: b0, 1: b1} {
		wg.Add(1)
		go func(addr string, b *bus.Bus) {
			defer wg.Done()
			_ = b.ListenAndServe(ctx, addr)
		}(peers[id], b)
	}
	time.Sleep(50 * time.Millisecond)

	t0 := NewBusTransport(b0, "sign_session_1")
	t1 := NewBusTransport(b1, "sign_session_1")

	var wg2 sync.WaitGroup
	var gotAt1 []byte
	var sendErr error
	wg2.Add(1)
	go func() {
		defer wg2.Done()
		sendErr = t0.Send(context.Background(), 1, "share", []byte("hello from 0"))
	}()
	wg2.Add(1)
	go func() {
		defer wg2.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		var err error
		gotAt1, err = t1.Wait(ctx, 0, "share")
		require.NoError(t, err)
	}()
	wg2.Wait()

	require.NoError(t, sendErr)
	require.Equal(t, []byte("hello from 0"), gotAt1)
}
