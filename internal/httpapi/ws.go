package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/protocol"
)

const sourceWS = "ws"

func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "missing_conversation_id", "query parameter conversation_id is required")
		return
	}
	if s.replies == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "reply service not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, conversation.ID(conversationID), inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	enqueue(ctx, outbound, protocol.SystemEvent{
		Type:           protocol.TypeSystemEvent,
		ConversationID: conversationID,
		Code:           "connected",
	})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(ctx, outbound, protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConversationID: conversationID,
				Code:           "invalid_client_message",
				Detail:         err.Error(),
			})
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	close(inbound)
	<-runDone
	cancel()
	<-writerDone
}

// runConnection handles parsed client messages for one websocket in arrival
// order. A panic while handling a message is reported to the client as the
// internal fallback and the connection keeps going.
func (s *Server) runConnection(ctx context.Context, id conversation.ID, inbound <-chan any, outbound chan<- any) {
	for msg := range inbound {
		if ctx.Err() != nil {
			return
		}
		out := s.handleClientMessage(ctx, id, msg)
		if out != nil {
			enqueue(ctx, outbound, out)
		}
	}
}

func (s *Server) handleClientMessage(ctx context.Context, id conversation.ID, msg any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("conversation_id", string(id)).
				Str("source", sourceWS).
				Err(fmt.Errorf("panic: %v", r)).
				Msg("websocket message handler panicked")
			out = protocol.AssistantReply{
				Type:           protocol.TypeAssistantReply,
				ConversationID: string(id),
				Text:           s.replies.Fallbacks().Internal,
			}
		}
	}()

	switch m := msg.(type) {
	case protocol.UserMessage:
		s.metrics.ObserveInbound(sourceWS, "text")
		text, err := s.replies.Generate(ctx, id, m.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("conversation_id", string(id)).Str("source", sourceWS).Msg("generate failed")
			text = s.replies.Fallbacks().Internal
		}
		return protocol.AssistantReply{
			Type:           protocol.TypeAssistantReply,
			ConversationID: string(id),
			Text:           text,
			ReplyTo:        m.ClientMsgID,
		}
	case protocol.ResetRequest:
		if err := s.replies.Reset(ctx, id); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConversationID: string(id),
				Code:           "reset_failed",
				Detail:         err.Error(),
			}
		}
		s.metrics.ObserveReset(sourceWS)
		return protocol.HistoryReset{Type: protocol.TypeHistoryReset, ConversationID: string(id)}
	default:
		return nil
	}
}

func enqueue(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.ResetRequest:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.HistoryReset:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
