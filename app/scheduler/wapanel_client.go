package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
)

// SendRequest carries one delivery to the gateway. API URL and token come from
// the queue item's connection snapshot, not from live device rows.
type SendRequest struct {
	APIURL      string
	Token       string
	GroupID     string
	MessageType models.MessageType
	Payload     models.MessagePayload
}

// GatewayClient sends one message through a WAPanel-compatible gateway
type GatewayClient interface {
	Send(ctx context.Context, req SendRequest) error
}

type wapanelResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

type httpWAPanelClient struct {
	cfg    config.GatewayConfig
	client *http.Client
}

// NewWAPanelClient creates a gateway client backed by plain HTTP
func NewWAPanelClient(cfg config.GatewayConfig) GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpWAPanelClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts one message to the endpoint for its type. Unknown types are sent
// through the text endpoint with whatever textual content the payload carries,
// so a queue row written by a newer writer still goes out instead of wedging
// the queue.
func (c *httpWAPanelClient) Send(ctx context.Context, req SendRequest) error {
	msgType := req.MessageType
	payload := req.Payload
	if !msgType.Valid() {
		text := payload.TextContent()
		msgType = models.MessageTypeText
		payload = models.MessagePayload{Text: &text}
	}

	body := c.buildBody(req.GroupID, msgType, payload)
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway body: %w", err)
	}

	url := strings.TrimRight(req.APIURL, "/") + c.endpointFor(msgType)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway http status: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var out wapanelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if !out.Status {
		return fmt.Errorf("gateway rejected message: %s", out.Message)
	}

	return nil
}

// endpointFor maps a message type to its configured gateway path
func (c *httpWAPanelClient) endpointFor(t models.MessageType) string {
	if path, ok := c.cfg.EndpointPaths[t.String()]; ok && path != "" {
		return path
	}
	if path, ok := c.cfg.EndpointPaths[models.MessageTypeText.String()]; ok && path != "" {
		return path
	}
	return "/send/message"
}

// buildBody assembles the type-specific request body
func (c *httpWAPanelClient) buildBody(groupID string, t models.MessageType, p models.MessagePayload) map[string]any {
	body := map[string]any{
		"chatId": groupID,
	}

	switch t {
	case models.MessageTypeText:
		body["text"] = deref(p.Text)

	case models.MessageTypeImage, models.MessageTypeVideo, models.MessageTypeAudio, models.MessageTypeSticker:
		body["url"] = deref(p.MediaURL)
		if p.Caption != nil {
			body["caption"] = *p.Caption
		}

	case models.MessageTypeDocument:
		body["url"] = deref(p.MediaURL)
		body["fileName"] = deref(p.FileName)
		if p.Caption != nil {
			body["caption"] = *p.Caption
		}

	case models.MessageTypeLocation:
		if p.Latitude != nil {
			body["latitude"] = *p.Latitude
		}
		if p.Longitude != nil {
			body["longitude"] = *p.Longitude
		}
		if p.LocationName != nil {
			body["name"] = *p.LocationName
		}

	case models.MessageTypeContact:
		body["name"] = deref(p.ContactName)
		body["phone"] = deref(p.ContactPhone)

	case models.MessageTypePoll:
		body["question"] = deref(p.PollQuestion)
		body["options"] = p.PollOptions
		if p.PollCountable != nil {
			body["countable"] = *p.PollCountable
		}

	case models.MessageTypeList:
		body["title"] = deref(p.ListTitle)
		body["buttonText"] = deref(p.ListButtonText)
		if p.ListDesc != nil {
			body["description"] = *p.ListDesc
		}
		sections := make([]map[string]any, 0, len(p.ListSections))
		for _, s := range p.ListSections {
			rows := make([]map[string]any, 0, len(s.Rows))
			for _, r := range s.Rows {
				rows = append(rows, map[string]any{
					"title":       r.Title,
					"description": r.Description,
				})
			}
			sections = append(sections, map[string]any{
				"title": s.Title,
				"rows":  rows,
			})
		}
		body["sections"] = sections
	}

	return body
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
