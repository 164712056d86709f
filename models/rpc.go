package models

import "encoding/json"

// JSON-RPC 2.0 Request
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSON-RPC 2.0 Response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCErrorBody   `json:"error,omitempty"`
}

// JSON-RPC 2.0 Error
type RPCErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ============================================
// monerod json_rpc results
// ============================================

// get_block_count
type BlockCountResult struct {
	Count  uint64 `json:"count"`
	Status string `json:"status,omitempty"`
}

// get_difficulty
type DifficultyResult struct {
	Difficulty uint64 `json:"difficulty"`
}

// get_block
type BlockResult struct {
	BlockHeader BlockHeader `json:"block_header"`
}

type BlockHeader struct {
	Height     uint64 `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	Difficulty uint64 `json:"difficulty"`
	Reward     uint64 `json:"reward"`
	Hash       string `json:"hash,omitempty"`
}

// get_supply. total_supply can exceed 64 bits, so it is kept as a json.Number.
type SupplyResult struct {
	TotalSupply json.Number `json:"total_supply"`
}

// get_info (only the fields we read)
type InfoResult struct {
	Version      string `json:"version"`
	Synchronized bool   `json:"synchronized"`
}
