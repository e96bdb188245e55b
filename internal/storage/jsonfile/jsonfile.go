// Package jsonfile reads the catalog and the order collection from the JSON files the storefront
// writes. Files are re-read on every call so a request always sees the latest orders.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/logctx"
)

// flexID accepts 42, "42" and " 42 ". Anything else leaves it unset.
type flexID struct {
	Value int64
	Set   bool
}

func (f *flexID) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	var s string

	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Value, f.Set = n, true
	}

	return nil
}

// flexString accepts strings and numbers; order ids are sometimes written as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*f = flexString(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	*f = flexString(n.String())

	return nil
}

// readRecords loads a JSON array of records, or an object holding the array under key. A missing
// or unparseable file is an error; individual records are decoded by the caller.
func readRecords(filename, key string) ([]json.RawMessage, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	if raw[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", key, err)
		}

		inner, ok := wrapped[key]
		if !ok {
			return nil, fmt.Errorf("failed to parse %s: missing %q array", key, key)
		}

		raw = inner
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}

	return records, nil
}

func warnSkipped(ctx context.Context, kind string, index int, err error) {
	logctx.LoggerFromContext(ctx).WarnContext(ctx, "skipping malformed record", "kind", kind, "index", index, "err", err)
}
