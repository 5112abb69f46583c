package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/indexer"
	"github.com/hollowdex/wildchain/params"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	params  *params.Params
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, p *params.Params, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, params: p, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getAccount":
		return h.getAccount(req)

	case "getInventory":
		return h.getInventory(req)

	case "getSlot":
		return h.getSlot(req)

	case "getSlots":
		return h.getSlots(req)

	case "getPendingRequest":
		return h.getPendingRequest(req)

	case "getPool":
		return h.getPool(req)

	case "getRewards":
		return h.getRewards(req)

	case "getRate":
		return h.getRate(req)

	case "getParams":
		return okResponse(req.ID, h.params)

	case "getPaused":
		return h.getPaused(req)

	case "getCatchesByPlayer":
		return h.getCatchesByPlayer(req)

	case "getRewardsByOwner":
		return h.getRewardsByOwner(req)

	case "getPendingRequestsByPlayer":
		return h.getPendingRequestsByPlayer(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address":  params.Address,
		"balances": acc.Balances,
		"nonce":    acc.Nonce,
	})
}

// getInventory reports the player's ball counts for every configured tier.
func (h *Handler) getInventory(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	counts := make(map[string]uint64, len(h.params.Tiers))
	for _, tier := range h.params.Tiers {
		n, err := h.state.GetBallCount(params.Player, tier.Name)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		counts[tier.Name] = n
	}
	return okResponse(req.ID, counts)
}

func (h *Handler) getSlot(req Request) Response {
	var params struct {
		Slot uint32 `json:"slot"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	capacity, err := h.state.SlotCapacity()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if params.Slot >= capacity {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("slot %d out of range (capacity %d)", params.Slot, capacity))
	}
	slot, err := h.state.GetSlot(params.Slot)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, slot)
}

// getSlots returns the whole slot table, indexed by slot number. Game servers
// poll this to render the board.
func (h *Handler) getSlots(req Request) Response {
	capacity, err := h.state.SlotCapacity()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	slots := make([]*core.SpawnSlot, capacity)
	for i := uint32(0); i < capacity; i++ {
		slot, err := h.state.GetSlot(i)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		slots[i] = slot
	}
	return okResponse(req.ID, map[string]any{"capacity": capacity, "slots": slots})
}

func (h *Handler) getPendingRequest(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	r, err := h.state.GetRequest(params.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errResponse(req.ID, CodeInvalidParams, "unknown request")
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, r)
}

func (h *Handler) getPool(req Request) Response {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Name != core.PoolRevenue && params.Name != core.PoolTreasury {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("name must be %q or %q", core.PoolRevenue, core.PoolTreasury))
	}
	pool, err := h.state.GetPool(params.Name)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, pool)
}

func (h *Handler) getRewards(req Request) Response {
	inv, err := h.state.GetRewardInventory()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"available": len(inv.IDs),
		"in_flight": inv.InFlight,
		"ids":       inv.IDs,
	})
}

func (h *Handler) getRate(req Request) Response {
	var params struct {
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Currency == "" {
		return errResponse(req.ID, CodeInvalidParams, "currency is required")
	}
	rate, err := h.state.GetRate(params.Currency)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errResponse(req.ID, CodeInvalidParams, "no rate for currency")
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"currency": params.Currency, "rate": rate})
}

func (h *Handler) getPaused(req Request) Response {
	paused, err := h.state.Paused()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]bool{"paused": paused})
}

func (h *Handler) getCatchesByPlayer(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	catches, err := h.indexer.GetCatchesByPlayer(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, catches)
}

func (h *Handler) getRewardsByOwner(req Request) Response {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Owner == "" {
		return errResponse(req.ID, CodeInvalidParams, "owner is required")
	}
	ids, err := h.indexer.GetRewardsByOwner(params.Owner)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getPendingRequestsByPlayer(req Request) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Player == "" {
		return errResponse(req.ID, CodeInvalidParams, "player is required")
	}
	ids, err := h.indexer.GetPendingRequestsByPlayer(params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
