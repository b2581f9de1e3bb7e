package alphavantage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const globalQuoteKey = "Global Quote"

// advisoryKeys are the top-level keys the provider uses for usage and quota notices.
var advisoryKeys = []string{"Note", "Information", "Error Message"}

// DecodeError reports a response that carries no usable quote.
type DecodeError struct {
	Reason   string
	Advisory string // provider notice, if the response carried one
}

func (e *DecodeError) Error() string {
	if e.Advisory != "" {
		return fmt.Sprintf("alphavantage: no quote (%s): %s", e.Reason, e.Advisory)
	}
	return fmt.Sprintf("alphavantage: no quote (%s)", e.Reason)
}

// DecodeGlobalQuote extracts a QuoteRecord from a GLOBAL_QUOTE body. Every key in
// QuoteSchema must be present; otherwise a *DecodeError is returned and no partial
// record is produced.
func DecodeGlobalQuote(body []byte) (QuoteRecord, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return QuoteRecord{}, &DecodeError{Reason: "not a JSON object"}
	}

	rawQuote, ok := top[globalQuoteKey]
	if !ok {
		return QuoteRecord{}, &DecodeError{Reason: `missing "Global Quote"`, Advisory: advisory(top)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawQuote, &fields); err != nil || fields == nil {
		return QuoteRecord{}, &DecodeError{Reason: `malformed "Global Quote"`, Advisory: advisory(top)}
	}

	var rec QuoteRecord
	for _, f := range QuoteSchema {
		raw, ok := fields[f.ProviderKey]
		if !ok {
			return QuoteRecord{}, &DecodeError{
				Reason:   fmt.Sprintf("missing field %q", f.ProviderKey),
				Advisory: advisory(top),
			}
		}
		value, ok := scalarText(raw)
		if !ok {
			return QuoteRecord{}, &DecodeError{Reason: fmt.Sprintf("malformed field %q", f.ProviderKey)}
		}
		rec.set(f.Name, value)
	}
	return rec, nil
}

// scalarText returns a JSON string's content or a JSON number's literal text.
// null is rejected.
func scalarText(raw json.RawMessage) (string, bool) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err == nil {
		return n.String(), true
	}
	return "", false
}

func advisory(top map[string]json.RawMessage) string {
	for _, key := range advisoryKeys {
		raw, ok := top[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
