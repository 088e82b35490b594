package telegram

import (
	"context"
	"errors"
)

// Notifier forwards lead blocks to the fixed operations chat.
type Notifier struct {
	client        *Client
	workingChatID int64
}

// NewNotifier creates a Notifier bound to the operations chat id.
func NewNotifier(client *Client, workingChatID int64) (*Notifier, error) {
	if client == nil {
		return nil, errors.New("telegram: client must not be nil")
	}
	if workingChatID == 0 {
		return nil, errors.New("telegram: working chat id must not be zero")
	}
	return &Notifier{client: client, workingChatID: workingChatID}, nil
}

// NotifyLead sends one lead block to the operations chat.
func (n *Notifier) NotifyLead(ctx context.Context, text string) error {
	return n.client.SendMessage(ctx, n.workingChatID, text)
}
