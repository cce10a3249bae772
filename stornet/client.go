// Package stornet implements the storage network backend: a JSON-RPC client
// for the storage nodes, a caching segment downloader, and the composite
// that settles deposits on the ledger and moves payload bytes to and from
// the nodes.
package stornet

import (
	"context"
	"fmt"

	"github.com/aloksahay/fairbnb-sub000/merkle"
	"github.com/ethereum/go-ethereum/rpc"
)

// SegmentSize is the number of bytes per transfer segment. Payloads move to
// and from the nodes in segments of this size; the final segment of a
// payload may be shorter.
const SegmentSize = 256 << 10

type (
	// A Status is the health snapshot a storage node reports.
	Status struct {
		Peers         int    `json:"connectedPeers"`
		LogSyncHeight uint64 `json:"logSyncHeight"`
	}

	// A FileInfo describes a payload known to the storage network.
	FileInfo struct {
		Root      merkle.Root `json:"root"`
		Size      uint64      `json:"size"`
		Finalized bool        `json:"finalized"`
	}

	// A Segment is one slice of a payload in transfer order.
	Segment struct {
		Root  merkle.Root `json:"root"`
		Index uint64      `json:"index"`
		Total uint64      `json:"total"`
		Data  []byte      `json:"data"`
	}

	// A NodeClient talks to a single storage node.
	NodeClient struct {
		endpoint string
		rc       *rpc.Client
	}
)

// DialNode connects to a storage node's RPC endpoint.
func DialNode(ctx context.Context, endpoint string) (*NodeClient, error) {
	rc, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial storage node %q: %w", endpoint, err)
	}
	return &NodeClient{endpoint: endpoint, rc: rc}, nil
}

// Endpoint returns the node's RPC address.
func (c *NodeClient) Endpoint() string {
	return c.endpoint
}

// Close closes the connection to the node.
func (c *NodeClient) Close() {
	c.rc.Close()
}

// Status returns the node's health snapshot.
func (c *NodeClient) Status(ctx context.Context) (Status, error) {
	var status Status
	if err := c.rc.CallContext(ctx, &status, "stor_getStatus"); err != nil {
		return Status{}, fmt.Errorf("failed to get status: %w", err)
	}
	return status, nil
}

// FileInfo returns what the node knows about the payload addressed by root,
// or nil if the network has never seen the root.
func (c *NodeClient) FileInfo(ctx context.Context, root merkle.Root) (*FileInfo, error) {
	var info *FileInfo
	if err := c.rc.CallContext(ctx, &info, "stor_getFileInfo", root); err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	return info, nil
}

// UploadSegment pushes one segment to the node.
func (c *NodeClient) UploadSegment(ctx context.Context, seg Segment) error {
	if err := c.rc.CallContext(ctx, nil, "stor_uploadSegment", seg); err != nil {
		return fmt.Errorf("failed to upload segment %d: %w", seg.Index, err)
	}
	return nil
}

// DownloadSegment fetches one segment of the payload addressed by root.
func (c *NodeClient) DownloadSegment(ctx context.Context, root merkle.Root, index uint64) ([]byte, error) {
	var data []byte
	if err := c.rc.CallContext(ctx, &data, "stor_downloadSegment", root, index); err != nil {
		return nil, fmt.Errorf("failed to download segment %d: %w", index, err)
	}
	return data, nil
}
