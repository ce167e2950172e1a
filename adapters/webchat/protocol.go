package webchat

// Frame is every JSON frame exchanged with browser clients. Type selects
// which fields are meaningful.
//
//	client → server  {"type":"message","text":"/rate 4","reply_to":"..."}
//	                 {"type":"message","sticker":"wave"}
//	server → client  {"type":"welcome","user_id":"alice","chat_id":"lobby"}
//	                 {"type":"message","id":"...","sender_id":"bot","text":"...","reply_to":"..."}
//	                 {"type":"reaction","message_id":"...","emoji":"✅"}
//	                 {"type":"media","id":"...","kind":"photo","url":"...","caption":"..."}
type Frame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
	Text      string `json:"text,omitempty"`
	ReplyTo   string `json:"reply_to,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Sticker   string `json:"sticker,omitempty"`
	Kind      string `json:"kind,omitempty"`
	URL       string `json:"url,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

const (
	frameWelcome  = "welcome"
	frameMessage  = "message"
	frameReaction = "reaction"
	frameMedia    = "media"
	frameError    = "error"
)

// botSender is the sender id of frames the bot sends.
const botSender = "bot"
