package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage    MessageType = "user_message"
	TypeReset          MessageType = "reset"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeHistoryReset   MessageType = "history_reset"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage carries one utterance from the client. ClientMsgID is echoed
// back on the matching reply so clients can correlate.
type UserMessage struct {
	Type        MessageType `json:"type"`
	Text        string      `json:"text"`
	ClientMsgID string      `json:"client_msg_id,omitempty"`
}

type ResetRequest struct {
	Type MessageType `json:"type"`
}

type AssistantReply struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Text           string      `json:"text"`
	ReplyTo        string      `json:"reply_to,omitempty"`
}

type HistoryReset struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
}

type SystemEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid user_message: empty text")
		}
		return msg, nil
	case TypeReset:
		return ResetRequest{Type: TypeReset}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
