package deriv

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Typed views over the broker's response payloads. Raw frames are demuxed by
// req_id and msg_type with gjson, then decoded exactly once into one of
// these; nothing downstream of the client touches untyped JSON.

// Authorize is the account identity returned by the authorize call.
type Authorize struct {
	LoginID   string  `json:"loginid"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
	IsVirtual int     `json:"is_virtual"`
	Email     string  `json:"email"`
}

func (a Authorize) Virtual() bool { return a.IsVirtual != 0 }

// BalanceInfo is the balance response payload.
type BalanceInfo struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// ProposalInfo carries a contract quote. PayoutRatio is derived once at
// decode time: gross payout over ask price.
type ProposalInfo struct {
	ID          string  `json:"id"`
	Payout      float64 `json:"payout"`
	AskPrice    float64 `json:"ask_price"`
	PayoutRatio float64 `json:"-"`
}

// BuyInfo is the confirmation of a placed contract.
type BuyInfo struct {
	ContractID    int64   `json:"contract_id"`
	TransactionID int64   `json:"transaction_id"`
	BuyPrice      float64 `json:"buy_price"`
	Payout        float64 `json:"payout"`
	LongCode      string  `json:"longcode"`
}

// ContractStatusInfo is the settlement view of an open or sold contract.
type ContractStatusInfo struct {
	ContractID     int64           `json:"contract_id"`
	IsSold         int             `json:"is_sold"`
	Profit         float64         `json:"profit"`
	Payout         float64         `json:"payout"`
	CurrentBalance float64         `json:"current_balance"`
	EntryTick      json.RawMessage `json:"entry_tick"`
	ExitTick       json.RawMessage `json:"exit_tick"`
	Status         string          `json:"status"`
}

func (c ContractStatusInfo) Sold() bool { return c.IsSold != 0 }

// BuyParams describes one binary contract purchase. Barrier is only set for
// digit-differs contracts.
type BuyParams struct {
	ContractType string
	Stake        float64
	Symbol       string
	Currency     string
	Barrier      string
	Duration     int
	DurationUnit string
}

func (p BuyParams) request() map[string]any {
	params := map[string]any{
		"amount":        p.Stake,
		"basis":         "stake",
		"contract_type": p.ContractType,
		"currency":      p.Currency,
		"symbol":        p.Symbol,
		"duration":      p.Duration,
		"duration_unit": p.DurationUnit,
	}
	if p.Barrier != "" {
		params["barrier"] = p.Barrier
	}
	return map[string]any{
		"buy":        1,
		"price":      p.Stake,
		"parameters": params,
	}
}

// apiError extracts the broker error object, if the frame carries one.
func apiError(raw []byte) error {
	node := gjson.GetBytes(raw, "error")
	if !node.Exists() {
		return nil
	}
	apiErr := &APIError{
		Code:    node.Get("code").String(),
		Message: node.Get("message").String(),
	}
	return apiErr
}

// decodePayload checks the frame for a broker error, then decodes the named
// top-level field into out.
func decodePayload(raw []byte, field string, out any) error {
	if err := apiError(raw); err != nil {
		return err
	}
	node := gjson.GetBytes(raw, field)
	if !node.Exists() {
		return fmt.Errorf("%w: response missing %q field", ErrProtocol, field)
	}
	if err := json.Unmarshal([]byte(node.Raw), out); err != nil {
		return fmt.Errorf("%w: decode %q: %v", ErrProtocol, field, err)
	}
	return nil
}
