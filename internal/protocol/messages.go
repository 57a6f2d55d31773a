package protocol

import (
	"encoding/json"
	"fmt"
)

// pixel (server -> client)
type PixelsMsg struct {
	Type   string  `json:"type"`
	Pixels []Pixel `json:"pixels"`
}

type Pixel struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Color int `json:"color"`
}

// Normalized maps the server's "cleared" color -1 onto the transparent
// sentinel 255.
func (p Pixel) Normalized() Pixel {
	if p.Color == -1 {
		p.Color = 255
	}
	return p
}

// users (server -> client)
type UsersMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// alert (server -> client)
type AlertMsg struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// notification (server -> client)
type NotificationMsg struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}

type Notification struct {
	ID      int64  `json:"id"`
	Time    int64  `json:"time"`
	Expiry  *int64 `json:"expiry,omitempty"`
	Who     string `json:"who"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// chat_message (server -> client)
type ChatMessageMsg struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

type ChatMessage struct {
	ID                    int64            `json:"id"`
	Author                string           `json:"author"`
	Date                  int64            `json:"date"`
	MessageRaw            string           `json:"message_raw"`
	Purge                 *Purge           `json:"purge,omitempty"`
	Badges                []Badge          `json:"badges"`
	AuthorNameColor       int              `json:"authorNameColor"`
	AuthorWasShadowBanned *bool            `json:"authorWasShadowBanned,omitempty"`
	StrippedFaction       *StrippedFaction `json:"strippedFaction,omitempty"`
}

type Purge struct {
	Initiator string `json:"initiator"`
	Reason    string `json:"reason"`
}

type Badge struct {
	DisplayName string `json:"displayName"`
	Tooltip     string `json:"tooltip"`
	Type        string `json:"type"`
	CSSIcon     string `json:"cssIcon,omitempty"`
}

type StrippedFaction struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Tag   string `json:"tag,omitempty"`
	Color int    `json:"color"`
}

// Decode validates and decodes one socket frame. It returns one of the *Msg
// types, or nil, nil for a well-formed frame of a type this client does not
// handle. Malformed frames yield a *ValidationError.
func Decode(raw []byte) (any, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &ValidationError{Object: "Message", Err: err}
	}
	obj, ok := generic.(map[string]any)
	if !ok {
		return nil, &ValidationError{Object: "Message", Err: fmt.Errorf("not an object")}
	}
	typ, ok := obj["type"].(string)
	if !ok {
		return nil, &ValidationError{Object: "Message", Err: fmt.Errorf("missing type")}
	}

	var out any
	switch typ {
	case TypePixel:
		out = &PixelsMsg{}
	case TypeUsers:
		out = &UsersMsg{}
	case TypeAlert:
		out = &AlertMsg{}
	case TypeNotification:
		out = &NotificationMsg{}
	case TypeChatMessage:
		out = &ChatMessageMsg{}
	default:
		return nil, nil
	}

	if err := Validate(typ, generic); err != nil {
		return nil, &ValidationError{Object: "Message", Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &ValidationError{Object: "Message", Err: err}
	}
	return out, nil
}

// DecodeNotifications decodes the /notifications backlog. Entries that fail
// validation are dropped; a body that is not an array is an error.
func DecodeNotifications(raw []byte) ([]Notification, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ValidationError{Object: "Notification", Err: err}
	}
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		var generic any
		if err := json.Unmarshal(item, &generic); err != nil {
			continue
		}
		// The array schema checks every element, so validate each one wrapped
		// in a single-element array.
		if err := Validate(SchemaNotifications, []any{generic}); err != nil {
			continue
		}
		var n Notification
		if err := json.Unmarshal(item, &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
