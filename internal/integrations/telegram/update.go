package telegram

// Update is an inbound webhook payload. Exactly one of the optional
// fields is set per update; anything we don't model is ignored.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// CallbackQuery is an inline-button press. Message is the message the
// button was attached to and may be absent for old messages.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

// ChatID returns the chat to reply into: the button's host message when
// present, the pressing user otherwise.
func (q *CallbackQuery) ChatID() int64 {
	if q.Message != nil {
		return q.Message.Chat.ID
	}
	return q.From.ID
}
