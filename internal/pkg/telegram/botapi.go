// Package telegram provides a thin direct Bot API client for calls made
// outside the bot's update loop (webhook registration, profile lookups
// from the batch tools).
package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

type BotAPI struct {
	client *resty.Client
}

func NewBotAPI(token string) *BotAPI {
	return &BotAPI{
		client: resty.New().SetBaseURL("https://api.telegram.org/bot" + token),
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func (b *BotAPI) WithBaseURL(url string) *BotAPI {
	b.client.SetBaseURL(url)
	return b
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Call makes a raw Bot API call and returns the result payload.
func (b *BotAPI) Call(method string, params map[string]any) (json.RawMessage, error) {
	resp, err := b.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram %s: %s", method, out.Description)
	}
	return out.Result, nil
}

// Chat is the subset of the getChat result the rename tool needs.
type Chat struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// GetChat fetches a user's profile by Telegram id.
func (b *BotAPI) GetChat(chatID int64) (*Chat, error) {
	result, err := b.Call("getChat", map[string]any{"chat_id": chatID})
	if err != nil {
		return nil, err
	}
	var chat Chat
	if err := json.Unmarshal(result, &chat); err != nil {
		return nil, fmt.Errorf("telegram getChat: decode result: %w", err)
	}
	return &chat, nil
}

// SetWebhook registers the webhook URL, restricted to the update types
// the bot handles.
func (b *BotAPI) SetWebhook(url string) error {
	_, err := b.Call("setWebhook", map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	})
	return err
}

// SendMessage sends an HTML-formatted text message.
func (b *BotAPI) SendMessage(chatID int64, text string) error {
	_, err := b.Call("sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	return err
}
