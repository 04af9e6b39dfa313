// qbclient/envelope.go
package qbclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// queryMetadataKeys are the non-entity keys of a QueryResponse
var queryMetadataKeys = map[string]bool{
	"startPosition": true,
	"maxResults":    true,
	"totalCount":    true,
}

type faultEnvelope struct {
	Fault *struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

// parseFault returns a fault error when body carries a QuickBooks Fault envelope
func parseFault(body []byte, statusCode int) *Error {
	var env faultEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Fault == nil {
		return nil
	}
	e := &Error{Kind: KindFault, StatusCode: statusCode, Message: env.Fault.Type}
	if len(env.Fault.Error) > 0 {
		first := env.Fault.Error[0]
		e.Code = first.Code
		e.Message = first.Message
		e.Detail = first.Detail
	}
	if e.Message == "" {
		e.Message = "unknown fault"
	}
	return e
}

// UnwrapQueryResponse returns the entity array of a query response. An empty
// result set yields nil.
func UnwrapQueryResponse(body []byte) (json.RawMessage, error) {
	var env struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}

	keys := make([]string, 0, len(env.QueryResponse))
	for k := range env.QueryResponse {
		if !queryMetadataKeys[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	return env.QueryResponse[keys[0]], nil
}

// unwrapEntity returns the object under the entity's key in a get/create/update response
func unwrapEntity(body []byte, entity string) (json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", entity, err)
	}
	if raw, ok := env[entity]; ok {
		return raw, nil
	}
	for k, raw := range env {
		if strings.EqualFold(k, entity) {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("response has no %s object", entity)
}

// EscapeQueryValue escapes a literal for use inside single quotes in a query
func EscapeQueryValue(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)
