package telegram

import "encoding/json"

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID      int64      `json:"message_id"`
	From           *user      `json:"from"`
	Chat           chatInfo   `json:"chat"`
	Date           int64      `json:"date"`
	Text           string     `json:"text"`
	Caption        string     `json:"caption"`
	ReplyToMessage *message   `json:"reply_to_message"`
	Sticker        *file      `json:"sticker"`
	Photo          []file     `json:"photo"`
	Document       *file      `json:"document"`
	Animation      *file      `json:"animation"`
	Voice          *file      `json:"voice"`
}

type user struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type chatInfo struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type file struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
}

type chatMember struct {
	Status string `json:"status"`
}
