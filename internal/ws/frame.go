package ws

import "encoding/json"

// Frame is the wire envelope for every realtime event in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Frame{Type: event, Data: data})
}

type errorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type typingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type readReceiptPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type messagesReadPayload struct {
	ChatID string `json:"chatId"`
	ReadBy string `json:"readBy"`
}

type reactionPayload struct {
	MessageID string          `json:"messageId"`
	ChatID    string          `json:"chatId"`
	Reactions json.RawMessage `json:"reactions"`
}

type userRef struct {
	ID string `json:"_id"`
}

// messageEnvelope holds the routing fields of a client-sent message; the
// original bytes are relayed untouched.
type messageEnvelope struct {
	ChatID string `json:"chatId"`
	Chat   struct {
		ID           string    `json:"_id"`
		Participants []userRef `json:"participants"`
	} `json:"chat"`
	Sender userRef `json:"sender"`
}

func (m messageEnvelope) chatID() string {
	if m.Chat.ID != "" {
		return m.Chat.ID
	}
	return m.ChatID
}

func (m messageEnvelope) participantIDs() []string {
	ids := make([]string, 0, len(m.Chat.Participants))
	for _, p := range m.Chat.Participants {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

type callUserPayload struct {
	To         string          `json:"to"`
	From       string          `json:"from"`
	Signal     json.RawMessage `json:"signal"`
	CallType   string          `json:"callType"`
	CallerInfo json.RawMessage `json:"callerInfo"`
}

type callAcceptedPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
	CallID string          `json:"callId"`
}

type callRefPayload struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type iceCandidatePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}
