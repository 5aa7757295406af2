package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var reservedKeys = map[string]struct{}{
	"id":              {},
	"productPrice":    {},
	"productDiscount": {},
	"quantity":        {},
}

// MarshalJSON writes the line item as one flat object: the typed fields plus every attribute.
func (li LineItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(li.Attributes)+4)
	for k, v := range li.Attributes {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["id"] = li.ID
	out["productPrice"] = li.ProductPrice
	out["productDiscount"] = li.ProductDiscount
	out["quantity"] = li.Quantity
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat line item object, keeping unknown keys as attributes.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var item LineItem
	for key, value := range raw {
		var err error
		switch key {
		case "id":
			err = decodeID(value, &item.ID)
		case "productPrice":
			err = decodeNumber(value, &item.ProductPrice)
		case "productDiscount":
			err = decodeNumber(value, &item.ProductDiscount)
		case "quantity":
			err = json.Unmarshal(value, &item.Quantity)
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				if item.Attributes == nil {
					item.Attributes = Attributes{}
				}
				item.Attributes[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("line item %q: %w", key, err)
		}
	}
	*li = item
	return nil
}

// jsonAttributes copies a into the shape a persisted line item decodes to: numbers become
// float64, objects map[string]any, arrays []any. Reserved keys and values that cannot be
// encoded are dropped, so an added line equals itself after a save and restore.
func jsonAttributes(a Attributes) Attributes {
	var out Attributes
	for k, v := range a {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			continue
		}
		if out == nil {
			out = make(Attributes, len(a))
		}
		out[k] = decoded
	}
	return out
}

// decodeID accepts string or numeric identifiers; numeric ids are kept in their JSON spelling.
func decodeID(raw json.RawMessage, dst *string) error {
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return errors.New("id must be a string or number")
	}
	*dst = n.String()
	return nil
}

func decodeNumber(raw json.RawMessage, dst *float64) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*dst = 0
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// Encode serialises the full state in its persisted form.
func Encode(s State) ([]byte, error) {
	if s.Items == nil {
		s.Items = []LineItem{}
	}
	return json.Marshal(s)
}

// Decode parses a persisted state as-is.
func Decode(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	if s.Items == nil {
		s.Items = []LineItem{}
	}
	return s, nil
}

// Restore turns persisted bytes into a usable state. Empty input and malformed input both
// yield the empty state; malformed input is logged and reported through the second return
// value. A parsed state is normalised: lines without an id or with a quantity below one are
// dropped, duplicate ids are merged into the first occurrence, and totals are recomputed.
func Restore(data []byte, logger zerolog.Logger) (State, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Empty(), false
	}
	s, err := Decode(data)
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(data)).Msg("discarding malformed cart state")
		return Empty(), true
	}
	return normalize(s), false
}

func normalize(s State) State {
	items := make([]LineItem, 0, len(s.Items))
	index := make(map[string]int, len(s.Items))
	for _, it := range s.Items {
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		if at, ok := index[it.ID]; ok {
			items[at].Quantity += it.Quantity
			continue
		}
		index[it.ID] = len(items)
		items = append(items, it)
	}
	return withItems(items)
}
