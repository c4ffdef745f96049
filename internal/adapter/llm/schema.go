package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"chatstream/internal/domain"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// normalizeToolSchema turns a tool's parameter schema into the object
// schema OpenAI-compatible servers accept. An empty schema becomes an
// object with no properties; a missing type defaults to "object"; an
// object without properties gets an empty properties map.
func normalizeToolSchema(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyObjectSchema, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Errorf("%w: tool schema is not valid JSON", domain.ErrInvalidInput)
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: tool schema must be a JSON object", domain.ErrInvalidInput)
	}

	out := append([]byte(nil), trimmed...)
	var err error
	if !root.Get("type").Exists() {
		if out, err = sjson.SetBytes(out, "type", "object"); err != nil {
			return nil, fmt.Errorf("set schema type: %w", err)
		}
	}
	if typ := gjson.GetBytes(out, "type").String(); typ == "object" && !root.Get("properties").Exists() {
		if out, err = sjson.SetRawBytes(out, "properties", []byte("{}")); err != nil {
			return nil, fmt.Errorf("set schema properties: %w", err)
		}
	}
	return out, nil
}
