package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// SlackSource is the attribution line under every outage post.
const SlackSource = "Fuente: AyA (Acueductos y Alcantarillados), <https://www.aya.go.cr|aya.go.cr>"

// Slack header blocks reject plain text longer than this.
const slackHeaderMax = 150

// Slack posts outage notices to an incoming webhook as a header, the notice
// body and a source line. Text carries the same notice for clients that do
// not render blocks.
type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when webhook is empty so callers can drop it into Multi.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func slackNotice(title, text string) slackMessage {
	header := []rune(title)
	if len(header) > slackHeaderMax {
		header = append(header[:slackHeaderMax-1], '…')
	}
	body := slackEscaper.Replace(text)
	msg := slackMessage{
		Text: "*" + slackEscaper.Replace(title) + "*\n" + body,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: string(header)}},
		},
	}
	if strings.TrimSpace(text) != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: body}})
	}
	msg.Blocks = append(msg.Blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: SlackSource}},
	})
	return msg
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(slackNotice(title, text))
	if err != nil {
		return fmt.Errorf("encode slack notice: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack notice: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}
