// Package api contains the request and response types of the storaged API
// and a client for calling it.
package api

import (
	"time"

	"github.com/aloksahay/fairbnb-sub000/gateway"
	"github.com/aloksahay/fairbnb-sub000/merkle"
)

type (
	// A HashResp is the content address of a posted payload. The root is
	// computed locally; nothing touches the network.
	HashResp struct {
		Root merkle.Root `json:"root"`
		Size uint64      `json:"size"`
	}

	// A StatusResp reports storage network connectivity and the build the
	// daemon is running.
	StatusResp struct {
		Network   gateway.NetworkStatus `json:"network"`
		Version   string                `json:"version"`
		Commit    string                `json:"commit"`
		BuildTime time.Time             `json:"buildTime"`
	}

	// A BalanceResp reports the settlement account funding the gateway's
	// deposits. Wei is a decimal string to survive JSON number precision.
	BalanceResp struct {
		Address string `json:"address"`
		Wei     string `json:"wei"`
		Display string `json:"display"`
	}
)
