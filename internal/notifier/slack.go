package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobmatch/internal/scheduler"
)

// Ensure SlackNotifier implements scheduler.Notifier.
var _ scheduler.Notifier = (*SlackNotifier)(nil)

// maxListedJobs caps how many failed job IDs go into one message.
const maxListedJobs = 20

// SlackNotifier posts embedding sync failures to a Slack channel via
// Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts batch failures to Slack.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// NotifyBatch sends one Block Kit message summarizing the batch. A 429 is
// retried once after Retry-After.
func (s *SlackNotifier) NotifyBatch(ctx context.Context, report scheduler.BatchReport) error {
	body, err := json.Marshal(buildPayload(report))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}

		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack message sent", "failed", report.Failed, "retried", true)
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Info("slack message sent", "failed", report.Failed)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestMessage sends a made-up failure report to verify the webhook.
func SendTestMessage(ctx context.Context, n scheduler.Notifier) error {
	return n.NotifyBatch(ctx, scheduler.BatchReport{
		Fetched:    3,
		Embedded:   2,
		Failed:     1,
		FailedJobs: []int64{0},
		Duration:   1500 * time.Millisecond,
	})
}

func buildPayload(r scheduler.BatchReport) slackPayload {
	ids := make([]string, 0, min(len(r.FailedJobs), maxListedJobs))
	for i, id := range r.FailedJobs {
		if i == maxListedJobs {
			break
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	failedText := strings.Join(ids, ", ")
	if extra := len(r.FailedJobs) - len(ids); extra > 0 {
		failedText += fmt.Sprintf(" and %d more", extra)
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("⚠️ Embedding sync: %d of %d jobs failed", r.Failed, r.Fetched)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Embedded:*\n" + strconv.Itoa(r.Embedded)},
				{Type: "mrkdwn", Text: "*Duration:*\n" + r.Duration.Round(time.Millisecond).String()},
			},
		},
	}
	if failedText != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Failed job IDs:*\n" + failedText},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})

	return slackPayload{Blocks: blocks}
}
