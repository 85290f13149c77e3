// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jsonrpc

import (
	"encoding/json"
	"fmt"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
)

// MessageKind identifies which JSON-RPC envelope a decoded frame turned out
// to be.
type MessageKind int

const (
	KindRequest MessageKind = iota
	KindNotification
	KindResponse
)

// Message is the result of decoding one JSON-RPC frame: exactly one of
// Request, Notification, or Response is populated, selected by Kind.
type Message struct {
	Kind         MessageKind
	Request      *Request
	Notification *Notification
	Response     *Response
}

// frame is the tolerant superset used to classify an incoming byte slice.
// Legacy frames from older clients sometimes omit "jsonrpc" entirely or
// send it as a bare integer 2 instead of the string "2.0"; both are
// accepted. Unknown fields are ignored by encoding/json by default, which
// satisfies the "tolerate unknown fields" requirement without extra code.
type frame struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Decode classifies and parses a single JSON-RPC frame. The decision rule:
// presence of "method" means Request (if "id" present) or Notification (if
// not); otherwise it is a Response, which must carry "result" xor "error".
func Decode(data []byte) (*Message, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, mcperrors.New(mcperrors.KindProtocol, "malformed json-rpc frame").WithCause(err)
	}

	if f.Method != "" {
		if f.ID != nil {
			return &Message{Kind: KindRequest, Request: &Request{
				JSONRPC: Version,
				ID:      *f.ID,
				Method:  f.Method,
				Params:  f.Params,
			}}, nil
		}
		return &Message{Kind: KindNotification, Notification: &Notification{
			JSONRPC: Version,
			Method:  f.Method,
			Params:  f.Params,
		}}, nil
	}

	if f.Result == nil && f.Error == nil {
		return nil, mcperrors.New(mcperrors.KindProtocol, "json-rpc frame is neither a request nor a response")
	}
	if f.Result != nil && f.Error != nil {
		return nil, mcperrors.New(mcperrors.KindProtocol, "json-rpc frame carries both result and error")
	}
	var id ID
	if f.ID != nil {
		id = *f.ID
	}
	return &Message{Kind: KindResponse, Response: &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  f.Result,
		Error:   f.Error,
	}}, nil
}

// Encode serializes a Request, Notification, or Response, emitting only the
// well-defined wire fields (struct tags already suppress empty optional
// fields via omitempty).
func Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *Request:
		msg.JSONRPC = Version
		return json.Marshal(msg)
	case *Notification:
		msg.JSONRPC = Version
		return json.Marshal(msg)
	case *Response:
		msg.JSONRPC = Version
		return json.Marshal(msg)
	default:
		return nil, fmt.Errorf("jsonrpc: cannot encode %T", v)
	}
}

// DecodeParams unmarshals a request or notification's raw params into out.
// A nil/empty Params is treated as "no params" and leaves out untouched.
func DecodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return mcperrors.New(mcperrors.KindProtocol, "invalid params").WithCause(err)
	}
	return nil
}
