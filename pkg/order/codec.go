package order

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Wire format: byte identifiers travel as hex strings (0x prefix optional),
// amounts as JSON numbers. Field names are snake_case.

type orderJSON struct {
	OrderID       string `json:"order_id"`
	Maker         string `json:"maker"`
	MakerAsset    string `json:"maker_asset"`
	TakerAsset    string `json:"taker_asset"`
	MakerAmount   uint64 `json:"maker_amount"`
	TakerAmount   uint64 `json:"taker_amount"`
	FilledAmount  uint64 `json:"filled_amount"`
	MinFillAmount uint64 `json:"min_fill_amount"`
	Expiry        int64  `json:"expiry"`
	Salt          string `json:"salt"`
}

type fillJSON struct {
	OrderID           string `json:"order_id"`
	FillID            string `json:"fill_id"`
	Taker             string `json:"taker"`
	FilledMakerAmount uint64 `json:"filled_maker_amount"`
	FilledTakerAmount uint64 `json:"filled_taker_amount"`
	Timestamp         int64  `json:"timestamp"`
	Partial           bool   `json:"partial"`
}

// DecodeField decodes one hex byte field. Empty input yields nil unless the
// field is required.
func DecodeField(name, s string, required bool) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		if required {
			return nil, fmt.Errorf("%w: %s is empty", ErrMalformedField, name)
		}
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, name, err)
	}
	return b, nil
}

func encodeField(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}

func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		OrderID:       encodeField(o.OrderID),
		Maker:         encodeField(o.Maker),
		MakerAsset:    encodeField(o.MakerAsset),
		TakerAsset:    encodeField(o.TakerAsset),
		MakerAmount:   o.MakerAmount,
		TakerAmount:   o.TakerAmount,
		FilledAmount:  o.FilledAmount,
		MinFillAmount: o.MinFillAmount,
		Expiry:        o.Expiry,
		Salt:          encodeField(o.Salt),
	})
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var w orderJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: order: %v", ErrMalformedField, err)
	}
	var (
		out Order
		err error
	)
	if out.OrderID, err = DecodeField("order_id", w.OrderID, true); err != nil {
		return err
	}
	if out.Maker, err = DecodeField("maker", w.Maker, true); err != nil {
		return err
	}
	if out.MakerAsset, err = DecodeField("maker_asset", w.MakerAsset, false); err != nil {
		return err
	}
	if out.TakerAsset, err = DecodeField("taker_asset", w.TakerAsset, false); err != nil {
		return err
	}
	if out.Salt, err = DecodeField("salt", w.Salt, false); err != nil {
		return err
	}
	out.MakerAmount = w.MakerAmount
	out.TakerAmount = w.TakerAmount
	out.FilledAmount = w.FilledAmount
	out.MinFillAmount = w.MinFillAmount
	out.Expiry = w.Expiry
	*o = out
	return nil
}

func (f Fill) MarshalJSON() ([]byte, error) {
	return json.Marshal(fillJSON{
		OrderID:           encodeField(f.OrderID),
		FillID:            encodeField(f.FillID),
		Taker:             encodeField(f.Taker),
		FilledMakerAmount: f.FilledMakerAmount,
		FilledTakerAmount: f.FilledTakerAmount,
		Timestamp:         f.Timestamp,
		Partial:           f.Partial,
	})
}

func (f *Fill) UnmarshalJSON(data []byte) error {
	var w fillJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: fill: %v", ErrMalformedField, err)
	}
	var (
		out Fill
		err error
	)
	if out.OrderID, err = DecodeField("order_id", w.OrderID, true); err != nil {
		return err
	}
	if out.FillID, err = DecodeField("fill_id", w.FillID, true); err != nil {
		return err
	}
	if out.Taker, err = DecodeField("taker", w.Taker, true); err != nil {
		return err
	}
	out.FilledMakerAmount = w.FilledMakerAmount
	out.FilledTakerAmount = w.FilledTakerAmount
	out.Timestamp = w.Timestamp
	out.Partial = w.Partial
	*f = out
	return nil
}

// ParseOrder decodes an order from its JSON wire form.
func ParseOrder(data []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ParseFill decodes a fill from its JSON wire form.
func ParseFill(data []byte) (Fill, error) {
	var f Fill
	if err := json.Unmarshal(data, &f); err != nil {
		return Fill{}, err
	}
	return f, nil
}
