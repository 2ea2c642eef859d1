package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tokenclaim/internal/apperr"
)

type ethService struct {
	delay time.Duration
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(56))
}

func (s *ethService) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return hexutil.Uint64(1234), nil
}

func newTestClient(t *testing.T, svc *ethService, opts Options) *Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", svc); err != nil {
		t.Fatalf("register: %v", err)
	}
	client := NewClientFromRPC(rpc.DialInProc(server), opts)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func TestClientChainIDAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	client := newTestClient(t, &ethService{}, Options{CallTimeout: time.Second, Metrics: metrics})

	id, err := client.GetChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Uint64() != 56 {
		t.Fatalf("chain id mismatch: %s", id)
	}

	head, err := client.LatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("block number: %v", err)
	}
	if head != 1234 {
		t.Fatalf("block number mismatch: %d", head)
	}

	if got := testutil.ToFloat64(metrics.Calls.WithLabelValues("eth_chainId", "ok")); got != 1 {
		t.Fatalf("eth_chainId counter: %v", got)
	}
}

func TestClientCallTimeout(t *testing.T) {
	client := newTestClient(t, &ethService{delay: time.Second}, Options{CallTimeout: 20 * time.Millisecond})

	_, err := client.LatestBlockNumber(context.Background())
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestWithTimeoutKeepsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, time.Second, func(ctx context.Context) error {
		return ctx.Err()
	})
	if errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("caller cancellation must not be reported as timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
