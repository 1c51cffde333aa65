package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"billtrack/internal/billing/models"
)

// gateway is a small JSON-over-HTTP client shared by the SMS and postal
// collaborators. 5xx and transport errors are transient; 4xx are permanent.
type gateway struct {
	channel models.Channel
	baseURL string
	apiKey  string
	client  *http.Client
}

func newGateway(ch models.Channel, baseURL, apiKey string, client *http.Client) gateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return gateway{channel: ch, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (g gateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return permanent(g.channel, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return permanent(g.channel, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return transient(g.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return transient(g.channel, err)
		}
		return permanent(g.channel, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transient(g.channel, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// SMSSender posts a text message to the SMS gateway.
type SMSSender struct {
	gw gateway
}

func NewSMSSender(baseURL, apiKey string, client *http.Client) *SMSSender {
	return &SMSSender{gw: newGateway(models.ChannelSMS, baseURL, apiKey, client)}
}

type smsRequest struct {
	To        string `json:"to"`
	Text      string `json:"text"`
	Reference string `json:"client_reference"`
}

type gatewayResponse struct {
	ID string `json:"id"`
}

func (s *SMSSender) Send(ctx context.Context, msg Message) (string, error) {
	var out gatewayResponse
	if err := s.gw.do(ctx, http.MethodPost, "/messages", smsRequest{
		To:        msg.RecipientContact,
		Text:      msg.Subject + "\n" + msg.Body,
		Reference: msg.TrackingNumber,
	}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", transient(models.ChannelSMS, fmt.Errorf("gateway returned no message id"))
	}
	return out.ID, nil
}

// PostSender books a registered-mail shipment with the postal API.
type PostSender struct {
	gw gateway
}

func NewPostSender(baseURL, apiKey string, client *http.Client) *PostSender {
	return &PostSender{gw: newGateway(models.ChannelPost, baseURL, apiKey, client)}
}

type shipmentRequest struct {
	Reference     string `json:"reference"`
	RecipientName string `json:"recipient_name"`
	Address       string `json:"address"`
	Description   string `json:"description"`
}

func (p *PostSender) Send(ctx context.Context, msg Message) (string, error) {
	var out gatewayResponse
	if err := p.gw.do(ctx, http.MethodPost, "/shipments", shipmentRequest{
		Reference:     msg.TrackingNumber,
		RecipientName: msg.RecipientName,
		Address:       msg.RecipientContact,
		Description:   msg.DocumentNumber,
	}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", transient(models.ChannelPost, fmt.Errorf("postal api returned no shipment id"))
	}
	return out.ID, nil
}

// TrackingStatus is the postal API's view of a shipment.
type TrackingStatus struct {
	Reference   string     `json:"id"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Detail      string     `json:"detail,omitempty"`
}

// Postal tracking states.
const (
	TrackingInTransit = "in_transit"
	TrackingDelivered = "delivered"
	TrackingReturned  = "returned"
)

// Track asks the postal API for the current state of a shipment.
func (p *PostSender) Track(ctx context.Context, ref string) (TrackingStatus, error) {
	var out TrackingStatus
	if err := p.gw.do(ctx, http.MethodGet, "/shipments/"+ref, nil, &out); err != nil {
		return TrackingStatus{}, err
	}
	if out.Reference == "" {
		out.Reference = ref
	}
	return out, nil
}

// HandDeliverySender records an in-person hand-over. The tracking number is
// the reference; confirmation comes later from the officer.
type HandDeliverySender struct{}

func (HandDeliverySender) Send(_ context.Context, msg Message) (string, error) {
	if msg.TrackingNumber == "" {
		return "", permanent(models.ChannelHandDelivery, fmt.Errorf("tracking number required"))
	}
	return msg.TrackingNumber, nil
}
