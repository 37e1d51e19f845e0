package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var jsonNullLiteral = []byte("null")

// Amount is a numeric CRM field. It accepts JSON numbers and numeric strings;
// null, missing, and malformed values decode to zero without failing the
// surrounding document.
type Amount float64

// UnmarshalJSON decodes the value leniently.
func (amount *Amount) UnmarshalJSON(data []byte) error {
	*amount = 0
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNullLiteral) {
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if unmarshalErr := json.Unmarshal(trimmed, &text); unmarshalErr != nil {
			return nil
		}
		*amount = parseAmount(text)
		return nil
	}
	*amount = parseAmount(string(trimmed))
	return nil
}

// Float64 returns the amount as a float64.
func (amount Amount) Float64() float64 {
	return float64(amount)
}

func parseAmount(raw string) Amount {
	parsed, parseErr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if parseErr != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return Amount(parsed)
}

// Identifier is a CRM record id. Laravel backends emit integers; some
// endpoints emit strings.
type Identifier string

// UnmarshalJSON accepts both numeric and string ids.
func (identifier *Identifier) UnmarshalJSON(data []byte) error {
	*identifier = ""
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNullLiteral) {
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if unmarshalErr := json.Unmarshal(trimmed, &text); unmarshalErr != nil {
			return unmarshalErr
		}
		*identifier = Identifier(strings.TrimSpace(text))
		return nil
	}
	*identifier = Identifier(string(trimmed))
	return nil
}

// String returns the id text.
func (identifier Identifier) String() string {
	return string(identifier)
}

// Text is a string CRM field. Non-string values decode to the empty string.
type Text string

// UnmarshalJSON decodes the value leniently.
func (text *Text) UnmarshalJSON(data []byte) error {
	*text = ""
	var value string
	if unmarshalErr := json.Unmarshal(data, &value); unmarshalErr != nil {
		return nil
	}
	*text = Text(value)
	return nil
}

// Collection is the {"data": [...]} envelope returned by CRM list endpoints.
type Collection[T any] struct {
	Data []T `json:"data"`
}

// UnmarshalJSON decodes the envelope leniently. A body or data field that is
// not the expected shape yields an empty collection, and a record that fails
// to decode is kept as its zero value.
func (collection *Collection[T]) UnmarshalJSON(data []byte) error {
	collection.Data = nil
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if unmarshalErr := json.Unmarshal(data, &envelope); unmarshalErr != nil {
		return nil
	}
	var records []json.RawMessage
	if unmarshalErr := json.Unmarshal(envelope.Data, &records); unmarshalErr != nil {
		return nil
	}
	collection.Data = make([]T, len(records))
	for index, record := range records {
		var decoded T
		if unmarshalErr := json.Unmarshal(record, &decoded); unmarshalErr == nil {
			collection.Data[index] = decoded
		}
	}
	return nil
}

// Len reports the number of records, treating a nil collection as empty.
func (collection *Collection[T]) Len() int {
	if collection == nil {
		return 0
	}
	return len(collection.Data)
}
