package portal

import (
	"encoding/json"
	"fmt"
)

// Envelope is the public-data portal response wrapper shared by both
// portal datasets.
type Envelope struct {
	Response struct {
		Header Header `json:"header"`
		Body   Body   `json:"body"`
	} `json:"response"`
}

type Header struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
}

type Body struct {
	Items      Items `json:"items"`
	NumOfRows  int   `json:"numOfRows"`
	PageNo     int   `json:"pageNo"`
	TotalCount int   `json:"totalCount"`
}

// Items accepts both {"item": [...]} and a bare array. The portal also sends
// an empty string when a page has no rows.
type Items []map[string]any

func (it *Items) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == `""` || string(data) == "null" {
		*it = nil
		return nil
	}

	if data[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*it = list
		return nil
	}

	var wrapped struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("items: %w", err)
	}
	if len(wrapped.Item) == 0 {
		*it = nil
		return nil
	}
	// A single row is sent as an object rather than a one-element array.
	if wrapped.Item[0] == '{' {
		var one map[string]any
		if err := json.Unmarshal(wrapped.Item, &one); err != nil {
			return err
		}
		*it = []map[string]any{one}
		return nil
	}
	var list []map[string]any
	if err := json.Unmarshal(wrapped.Item, &list); err != nil {
		return err
	}
	*it = list
	return nil
}

// Portal result codes.
const (
	resultOK           = "00"
	resultLimitExceeds = "22"
)
