package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type SlackSender struct {
	// Client overrides the default HTTP client; used in tests.
	Client *http.Client
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string       `json:"type"`
	Text     *slackText   `json:"text,omitempty"`
	Fields   []*slackText `json:"fields,omitempty"`
	Elements []*slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) *slackText { return &slackText{Type: "mrkdwn", Text: s} }

func (s *SlackSender) Type() string { return "slack" }

func (s *SlackSender) Send(ctx context.Context, ch *Channel, payload *Payload) error {
	if ch.URL == "" {
		return fmt.Errorf("slack webhook_url is required")
	}

	body, err := json.Marshal(buildSlackMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

// buildSlackMessage renders the plain-text fallback plus a section with the
// alert's type, severity and status. All alert text is escaped.
func buildSlackMessage(p *Payload) slackMessage {
	text := escapeSlackMrkdwn(FormatMessage(p))
	msg := slackMessage{
		Text:   text,
		Blocks: []slackBlock{{Type: "section", Text: mrkdwn(text)}},
	}
	a := p.Alert
	if a == nil {
		return msg
	}
	msg.Blocks = append(msg.Blocks,
		slackBlock{Type: "section", Fields: []*slackText{
			mrkdwn("*Type*\n" + escapeSlackMrkdwn(a.Type)),
			mrkdwn("*Severity*\n" + escapeSlackMrkdwn(a.Severity)),
			mrkdwn("*Status*\n" + escapeSlackMrkdwn(a.Status)),
		}},
		slackBlock{Type: "context", Elements: []*slackText{
			mrkdwn(fmt.Sprintf("alert #%d raised %s", a.ID, a.CreatedAt.UTC().Format(time.RFC3339))),
		}},
	)
	return msg
}

// escapeSlackMrkdwn keeps alert text from producing @channel pings or links.
func escapeSlackMrkdwn(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
