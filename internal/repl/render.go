package repl

import (
	"encoding/json"
	"strings"
)

// DisplayItem is one displayable piece of a response: a MIME bundle such as
// {"text/plain": "..."} and whether it is the cell's result.
type DisplayItem struct {
	Data   map[string]any `json:"data"`
	Result bool           `json:"result"`
}

// Render turns a successful response into display items. The first segment
// is plain text; later segments are MIME bundles encoded as JSON objects,
// falling back to plain text. Empty segments are skipped and the last
// segment is the result.
func Render(r Response) []DisplayItem {
	if !r.OK {
		return nil
	}

	var items []DisplayItem
	last := len(r.Segments) - 1
	for i, seg := range r.Segments {
		if seg == "" {
			continue
		}
		var data map[string]any
		if i == 0 {
			data = map[string]any{"text/plain": strings.TrimSuffix(seg, "\n")}
		} else if err := json.Unmarshal([]byte(seg), &data); err != nil || data == nil {
			data = map[string]any{"text/plain": seg}
		}
		items = append(items, DisplayItem{Data: data, Result: i == last})
	}
	return items
}
