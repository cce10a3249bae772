package stornet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/aloksahay/fairbnb-sub000/chain"
	"github.com/aloksahay/fairbnb-sub000/config"
	"github.com/aloksahay/fairbnb-sub000/gateway"
	"github.com/aloksahay/fairbnb-sub000/merkle"
	"github.com/aloksahay/fairbnb-sub000/retry"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type (
	// A Ledger settles deposits and reports the gateway's account state.
	Ledger interface {
		SubmitDeposit(ctx context.Context, root merkle.Root, length uint64) (string, error)
		Balance(ctx context.Context) (*big.Int, error)
		Height(ctx context.Context) (uint64, error)
		Address() common.Address
	}

	// A NetworkBackend moves payloads between the gateway and the storage
	// network: deposits settle on the ledger, bytes move to and from the
	// storage nodes in segments.
	NetworkBackend struct {
		ledger     Ledger
		nodes      []*NodeClient
		downloader *SegmentDownloader
		log        *zap.Logger

		probeTimeout time.Duration
	}
)

// NewBackend creates a NetworkBackend over the given ledger and nodes.
func NewBackend(ledger Ledger, nodes []*NodeClient, cfg config.Nodes, log *zap.Logger) (*NetworkBackend, error) {
	if len(nodes) == 0 {
		return nil, errors.New("at least one storage node is required")
	}
	downloader, err := NewSegmentDownloader(nodes, cfg.CacheSize, cfg.MaxConcurrent, cfg.RequestTimeout, log.Named("downloader"))
	if err != nil {
		return nil, fmt.Errorf("failed to create segment downloader: %w", err)
	}
	return &NetworkBackend{
		ledger:     ledger,
		nodes:      nodes,
		downloader: downloader,
		log:        log,

		probeTimeout: cfg.RequestTimeout,
	}, nil
}

// Close stops the downloader and closes the node connections.
func (b *NetworkBackend) Close() error {
	b.downloader.Close()
	for _, node := range b.nodes {
		node.Close()
	}
	return nil
}

// uploadNode pins a payload to one node so all of its segments land
// together.
func (b *NetworkBackend) uploadNode(root merkle.Root) *NodeClient {
	return b.nodes[int(root[0])%len(b.nodes)]
}

// Deposit submits the payload's deposit transaction on the ledger and then
// pushes its segments to a storage node. It returns the transaction hash.
func (b *NetworkBackend) Deposit(ctx context.Context, payload io.Reader, length uint64, root merkle.Root) (string, error) {
	txRef, err := b.ledger.SubmitDeposit(ctx, root, length)
	if err != nil {
		return "", fmt.Errorf("failed to submit deposit: %w", err)
	}

	node := b.uploadNode(root)
	total := (length + SegmentSize - 1) / SegmentSize
	remaining := length
	for i := uint64(0); i < total; i++ {
		n := uint64(SegmentSize)
		if remaining < n {
			n = remaining
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(payload, buf); err != nil {
			return "", fmt.Errorf("failed to read payload segment %d: %w", i, err)
		}
		if err := node.UploadSegment(ctx, Segment{Root: root, Index: i, Total: total, Data: buf}); err != nil {
			return "", err
		}
		remaining -= n
	}

	b.log.Debug("deposited payload",
		zap.Stringer("root", root),
		zap.Uint64("length", length),
		zap.Uint64("segments", total),
		zap.String("endpoint", node.Endpoint()),
		zap.String("tx", txRef))
	return txRef, nil
}

func (b *NetworkBackend) fileInfo(ctx context.Context, root merkle.Root) (*FileInfo, error) {
	var lastErr error
	for _, node := range b.nodes {
		info, err := node.FileInfo(ctx, root)
		if err != nil {
			lastErr = err
			continue
		}
		if info == nil {
			// the network has never seen this root; retrying will not
			// conjure it
			return nil, retry.Permanent(gateway.ErrNotFound)
		}
		return info, nil
	}
	return nil, fmt.Errorf("no node answered a file info request: %w", lastErr)
}

// Retrieve writes the payload addressed by root to dst, fetching its
// segments in order and prefetching ahead of the cursor.
func (b *NetworkBackend) Retrieve(ctx context.Context, root merkle.Root, dst io.Writer) error {
	info, err := b.fileInfo(ctx, root)
	if err != nil {
		return err
	}

	total := (info.Size + SegmentSize - 1) / SegmentSize
	for i := uint64(0); i < total; i++ {
		for j := i + 1; j < total && j < i+4; j++ {
			b.downloader.Prefetch(root, j)
		}
		data, err := b.downloader.Segment(ctx, root, i)
		if err != nil {
			return err
		}
		if _, err := dst.Write(data); err != nil {
			return fmt.Errorf("failed to write segment %d: %w", i, err)
		}
	}
	return nil
}

// Status probes the ledger and every node once, concurrently, and reports
// what it saw. Probe failures degrade the snapshot instead of failing it.
func (b *NetworkBackend) Status(ctx context.Context) gateway.NetworkStatus {
	probeCtx := ctx
	if b.probeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, b.probeTimeout)
		defer cancel()
	}

	var status gateway.NetworkStatus
	height, err := b.ledger.Height(probeCtx)
	ledgerOK := err == nil
	if err != nil {
		b.log.Debug("ledger probe failed", zap.Error(err))
	}
	status.LedgerHeight = height

	status.Nodes = make([]gateway.NodeStatus, len(b.nodes))
	var wg sync.WaitGroup
	for i, node := range b.nodes {
		wg.Add(1)
		go func(i int, node *NodeClient) {
			defer wg.Done()
			ns := gateway.NodeStatus{Endpoint: node.Endpoint()}
			if s, err := node.Status(probeCtx); err == nil {
				ns.Connected = true
				ns.Peers = s.Peers
				ns.SyncHeight = s.LogSyncHeight
			} else {
				b.log.Debug("node probe failed", zap.String("endpoint", node.Endpoint()), zap.Error(err))
			}
			status.Nodes[i] = ns
		}(i, node)
	}
	wg.Wait()

	for _, ns := range status.Nodes {
		if ns.Connected {
			status.Connected = ledgerOK
			break
		}
	}
	return status
}

// Balance reads the gateway identity's settlement account.
func (b *NetworkBackend) Balance(ctx context.Context) (gateway.Balance, error) {
	wei, err := b.ledger.Balance(ctx)
	if err != nil {
		return gateway.Balance{}, fmt.Errorf("failed to read balance: %w", err)
	}
	return gateway.Balance{
		Address: b.ledger.Address().Hex(),
		Wei:     wei,
		Display: chain.FormatWei(wei),
	}, nil
}
