package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnmarshalJSON decodes a transaction record leniently. Identifiers, amounts,
// fees and confirmation counts may arrive as strings or numbers; values of
// the wrong shape decode as absent instead of failing the record, so only
// the normalizer decides what is malformed.
func (r *RawTransaction) UnmarshalJSON(data []byte) error {
	type plain RawTransaction
	var aux struct {
		plain
		ID            lenientString  `json:"id"`
		LegacyID      lenientString  `json:"_id"`
		Amount        lenientDecimal `json:"amount"`
		Fee           lenientDecimal `json:"fee"`
		Confirmations lenientInt     `json:"confirmations"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = RawTransaction(aux.plain)
	r.ID = string(aux.ID)
	r.LegacyID = string(aux.LegacyID)
	r.Amount = aux.Amount.value
	r.Fee = aux.Fee.value
	r.Confirmations = aux.Confirmations.value
	return nil
}

// scalarText returns the text of a JSON string or number, or "" for
// anything else.
func scalarText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(data)
	}
	return ""
}

type lenientString string

func (s *lenientString) UnmarshalJSON(data []byte) error {
	*s = lenientString(scalarText(data))
	return nil
}

type lenientDecimal struct {
	value *decimal.Decimal
}

func (d *lenientDecimal) UnmarshalJSON(data []byte) error {
	d.value = nil
	text := scalarText(data)
	if text == "" {
		return nil
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	d.value = &v
	return nil
}

type lenientInt struct {
	value *int
}

func (n *lenientInt) UnmarshalJSON(data []byte) error {
	n.value = nil
	text := scalarText(data)
	if text == "" {
		return nil
	}
	if v, err := strconv.Atoi(text); err == nil {
		n.value = &v
		return nil
	}
	if d, err := decimal.NewFromString(text); err == nil && d.IsInteger() {
		v := int(d.IntPart())
		n.value = &v
	}
	return nil
}
