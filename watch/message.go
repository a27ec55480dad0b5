package watch

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"
)

// Reply is the structured response to an inbound subscribe/unsubscribe
// message.
type Reply struct {
	Success bool   `json:"success"`
	Type    string `json:"type,omitempty"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleMessage parses a raw JSON message and applies it to ws, returning
// the structured reply to send back. It never returns an error itself —
// every failure mode (invalid JSON, missing/wrong-typed fields, unknown
// type) is reported through Reply.Error.
func (c *Core) HandleMessage(ws *websocket.Conn, raw []byte) Reply {
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		return Reply{Success: false, Error: "invalid JSON"}
	}

	typRaw, ok := env["type"]
	if !ok {
		return Reply{Success: false, Error: "missing type"}
	}
	typ, ok := typRaw.(string)
	if !ok {
		return Reply{Success: false, Error: "type must be a string"}
	}
	if typ != "subscribe" && typ != "unsubscribe" {
		return Reply{Success: false, Type: typ, Error: "unknown message type"}
	}

	pathRaw, ok := env["path"]
	if !ok {
		return Reply{Success: false, Type: typ, Error: "missing path"}
	}
	path, ok := pathRaw.(string)
	if !ok {
		return Reply{Success: false, Type: typ, Error: "path must be a string"}
	}

	switch typ {
	case "subscribe":
		recursive, _ := env["recursive"].(bool)
		group, _ := env["group"].(string)
		raw := path
		if recursive {
			raw = strings.TrimSuffix(path, "/") + "/**"
		}
		ok, err := c.Subscribe(ws, raw, SubscribeOptions{Group: group})
		if err != nil {
			return Reply{Success: false, Type: typ, Path: path, Error: err.Error()}
		}
		return Reply{Success: ok, Type: typ, Path: path}
	case "unsubscribe":
		ok := c.Unsubscribe(ws, path)
		return Reply{Success: ok, Type: typ, Path: path}
	}
	return Reply{Success: false, Type: typ, Path: path, Error: "unreachable"}
}
