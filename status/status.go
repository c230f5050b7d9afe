// Package status extracts chain height observations from node status responses.
// Observations are never cached, every call performs exactly one query.
package status

import (
	"context"

	"github.com/bsv-blockchain/gcsync/errors"
)

// StatusResponse is the part of a node's /status document the harness consumes.
type StatusResponse struct {
	ChainID  string    `json:"chain_id,omitempty"`
	Version  *Version  `json:"version,omitempty"`
	SyncInfo *SyncInfo `json:"sync_info"`
}

type Version struct {
	Version string `json:"version"`
	Build   string `json:"build"`
}

type SyncInfo struct {
	LatestBlockHeight *uint64 `json:"latest_block_height"`
	LatestBlockHash   string  `json:"latest_block_hash,omitempty"`
	Syncing           bool    `json:"syncing"`
}

// Querier performs a single status query against one node.
type Querier interface {
	GetStatus(ctx context.Context) (*StatusResponse, error)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc func(ctx context.Context) (*StatusResponse, error)

func (f QuerierFunc) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return f(ctx)
}

// CurrentHeight returns the latest block height the node reports. An unreachable node
// or a response without sync_info.latest_block_height yields a query error.
func CurrentHeight(ctx context.Context, q Querier) (uint64, error) {
	resp, err := q.GetStatus(ctx)
	if err != nil {
		if errors.IsQueryError(err) {
			return 0, err
		}

		return 0, errors.NewQueryError("status query failed", err)
	}

	if resp == nil || resp.SyncInfo == nil {
		return 0, errors.NewQueryError("status response has no sync_info")
	}

	if resp.SyncInfo.LatestBlockHeight == nil {
		return 0, errors.NewQueryError("status response has no sync_info.latest_block_height")
	}

	return *resp.SyncInfo.LatestBlockHeight, nil
}

// AtHeight builds a response reporting height h.
func AtHeight(h uint64) *StatusResponse {
	return &StatusResponse{SyncInfo: &SyncInfo{LatestBlockHeight: &h}}
}
