// internal/infra/sms/adapter.go
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chore_notifier/internal/domain/channel"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"
)

// Adapter sends SMS through a Twilio-compatible REST API. It also supports
// provider-side status lookup, so it implements channel.StatusChecker.
type Adapter struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

// NewAdapter builds an SMS adapter. Empty credentials leave the channel
// unconfigured rather than erroring; the dispatcher skips it.
func NewAdapter(baseURL, accountSID, authToken, from string, timeout time.Duration) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Kind() notification.Channel {
	return notification.ChannelSMS
}

func (a *Adapter) IsConfigured() bool {
	return a.baseURL != "" && a.accountSID != "" && a.authToken != "" && a.from != ""
}

type providerMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	DateUpdated  string `json:"date_updated"`
}

func (a *Adapter) Send(ctx context.Context, rcpt *household.User, payload notification.Payload) (*channel.Result, error) {
	if !a.IsConfigured() {
		return nil, fmt.Errorf("sms provider is not configured")
	}
	if rcpt.Phone == "" {
		return nil, fmt.Errorf("user %s has no phone number", rcpt.ID)
	}

	form := url.Values{}
	form.Set("To", rcpt.Phone)
	form.Set("From", a.from)
	form.Set("Body", payload.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", a.baseURL, a.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sms provider error: status %s, body %s", resp.Status, string(body))
	}

	var pm providerMessage
	if err := json.NewDecoder(resp.Body).Decode(&pm); err != nil {
		return nil, fmt.Errorf("failed to decode sms provider response: %w", err)
	}
	return &channel.Result{ProviderMessageID: pm.SID}, nil
}

// Status queries the provider for the delivery state of a previously sent
// message.
func (a *Adapter) Status(ctx context.Context, providerMessageID string) (*channel.Status, error) {
	if !a.IsConfigured() {
		return nil, channel.ErrStatusUnsupported
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages/%s.json", a.baseURL, a.accountSID, providerMessageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sms status request: %w", err)
	}
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms status lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sms provider error: status %s, body %s", resp.Status, string(body))
	}

	var pm providerMessage
	if err := json.NewDecoder(resp.Body).Decode(&pm); err != nil {
		return nil, fmt.Errorf("failed to decode sms status response: %w", err)
	}

	st := &channel.Status{Status: mapProviderStatus(pm.Status), ErrorCode: pm.ErrorCode}
	if ts, err := time.Parse(time.RFC1123Z, pm.DateUpdated); err == nil {
		st.Timestamp = ts
	}
	return st, nil
}

func mapProviderStatus(s string) notification.DeliveryStatus {
	switch s {
	case "queued", "accepted", "sending":
		return notification.DeliveryQueued
	case "sent":
		return notification.DeliverySent
	case "delivered":
		return notification.DeliveryDelivered
	case "undelivered":
		return notification.DeliveryUndelivered
	case "failed":
		return notification.DeliveryFailed
	}
	return notification.DeliverySent
}
