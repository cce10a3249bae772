package gateway

import (
	"math/big"
	"time"

	"github.com/aloksahay/fairbnb-sub000/merkle"
)

type (
	// An UploadRecord describes a payload deposited on the storage network.
	// It is returned from Upload and persisted so later downloads can restore
	// the original file name and MIME type.
	UploadRecord struct {
		Root        merkle.Root `json:"root"`
		FileName    string      `json:"fileName"`
		MimeType    string      `json:"mimeType"`
		Size        uint64      `json:"size"`
		Transaction string      `json:"transaction"`
		UploadedAt  time.Time   `json:"uploadedAt"`
	}

	// A DownloadResult is a retrieved payload and its metadata. Size always
	// equals len(Payload).
	DownloadResult struct {
		Payload  []byte
		FileName string
		MimeType string
		Size     uint64
	}

	// A NodeStatus is one storage node's health snapshot.
	NodeStatus struct {
		Endpoint   string `json:"endpoint"`
		Connected  bool   `json:"connected"`
		Peers      int    `json:"peers"`
		SyncHeight uint64 `json:"syncHeight"`
	}

	// A NetworkStatus is a point-in-time view of backend connectivity. It is
	// recomputed on every call; a failed probe shows up as a disconnected
	// component, not an error.
	NetworkStatus struct {
		Connected    bool         `json:"connected"`
		LedgerHeight uint64       `json:"ledgerHeight"`
		Nodes        []NodeStatus `json:"nodes"`
	}

	// A Balance is the gateway identity's settlement account state. It is
	// advisory: deposits are not gated on it.
	Balance struct {
		Address string   `json:"address"`
		Wei     *big.Int `json:"wei"`
		Display string   `json:"display"`
	}
)
