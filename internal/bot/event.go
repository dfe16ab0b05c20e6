// Package bot holds the inbound event pipeline: webhook payload
// classification, the scripted qualification flow, and the orchestration
// that ties store, gateway, AI responder and notifier together.
package bot

// Payload is the raw Z-API webhook body. Message content arrives in one of
// two shapes: a free-text body or a button-click reply body.
type Payload struct {
	Type       string `json:"type"`
	Phone      string `json:"phone"`
	FromMe     bool   `json:"fromMe"`
	SenderName string `json:"senderName"`
	ChatName   string `json:"chatName"`
	Photo      string `json:"photo"`

	Text *struct {
		Message string `json:"message"`
	} `json:"text,omitempty"`
	ButtonsResponseMessage *struct {
		ButtonID string `json:"buttonId"`
		Message  string `json:"message"`
	} `json:"buttonsResponseMessage,omitempty"`
	ListResponseMessage *struct {
		SelectedRowID string `json:"selectedRowId"`
		Message       string `json:"message"`
	} `json:"listResponseMessage,omitempty"`
}

// InboundMessage is a classified, accepted inbound event.
type InboundMessage struct {
	Phone  string
	Body   string
	FromMe bool
	Name   string
	PicURL string
}

// noiseTypes are presence/typing/delivery/status callbacks with no message
// content. They are dropped before any persistence.
var noiseTypes = map[string]bool{
	"PresenceChatCallback":  true,
	"MessageStatusCallback": true,
	"DeliveryCallback":      true,
	"ReadCallback":          true,
}

// Classify filters a webhook payload down to a processable inbound message.
// It returns false for noise events, payloads without message content, and
// traffic originating from a registered bot number (so the service never
// answers itself or a sibling bot).
func Classify(p *Payload, botNumbers []string) (*InboundMessage, bool) {
	if p == nil || noiseTypes[p.Type] {
		return nil, false
	}
	if p.Phone == "" {
		return nil, false
	}

	var body string
	switch {
	case p.Text != nil && p.Text.Message != "":
		body = p.Text.Message
	case p.ButtonsResponseMessage != nil && p.ButtonsResponseMessage.Message != "":
		body = p.ButtonsResponseMessage.Message
	case p.ListResponseMessage != nil && p.ListResponseMessage.Message != "":
		body = p.ListResponseMessage.Message
	default:
		return nil, false
	}

	for _, n := range botNumbers {
		if n == p.Phone {
			return nil, false
		}
	}

	name := p.SenderName
	if name == "" {
		name = p.ChatName
	}
	if name == "" {
		name = "Unknown"
	}

	return &InboundMessage{
		Phone:  p.Phone,
		Body:   body,
		FromMe: p.FromMe,
		Name:   name,
		PicURL: p.Photo,
	}, true
}
