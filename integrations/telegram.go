package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go"
)

type TelegramClient struct {
	Client *http.Client
	Token  string
}

func NewTelegramClient(token string) *TelegramClient {
	return &TelegramClient{
		Client: &http.Client{},
		Token:  token,
	}
}

// SendMessage delivers a plain text message to one chat.
func (tg *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	formData := url.Values{}
	formData.Set("chat_id", chatID)
	formData.Set("text", text)
	return tg.post(ctx, formData)
}

// SendMessageWithLink delivers a message with a single inline URL button,
// used for reminders that carry a conference link.
func (tg *TelegramClient) SendMessageWithLink(ctx context.Context, chatID, text, linkLabel, linkURL string) error {
	markup, err := json.Marshal(map[string]any{
		"inline_keyboard": [][]map[string]string{
			{{"text": linkLabel, "url": linkURL}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode reply markup: %v", err)
	}

	formData := url.Values{}
	formData.Set("chat_id", chatID)
	formData.Set("text", text)
	formData.Set("reply_markup", string(markup))
	return tg.post(ctx, formData)
}

func (tg *TelegramClient) post(ctx context.Context, formData url.Values) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", tg.Token)

	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBufferString(formData.Encode()))
		if err != nil {
			return fmt.Errorf("failed to create post request: %v", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := tg.Client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send post request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return &httpStatusError{Status: resp.StatusCode, Body: string(bodyBytes)}
		}

		return nil
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(time.Second), retry.RetryIf(httpTransient), retry.LastErrorOnly(true))
}
