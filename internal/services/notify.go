package services

import (
	"bytes"
	"context"
	"domain-lifecycle/internal/config"
	"domain-lifecycle/internal/models"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// TransferNotifier delivers a fresh auth code to the registrant of a domain
// that is leaving. It never decides whether the transfer proceeds.
type TransferNotifier interface {
	NotifyTransferOut(ctx context.Context, rec *models.DomainRecord, authCode string) error
}

// NoopNotifier drops notifications
type NoopNotifier struct{}

// NotifyTransferOut does nothing
func (NoopNotifier) NotifyTransferOut(context.Context, *models.DomainRecord, string) error {
	return nil
}

// WebhookNotifier posts transfer notifications to a configured URL
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier. When cfg.Proxy is set the
// requests are dialed through that SOCKS5 proxy.
func NewWebhookNotifier(cfg *config.NotifyConfig, logger *slog.Logger) (*WebhookNotifier, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{Timeout: timeout}
	if cfg.Proxy != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 proxy %s: %w", cfg.Proxy, err)
		}
		transport := &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}
		client.Transport = transport
		logger.Info("transfer notifier using SOCKS5 proxy", "proxy", cfg.Proxy)
	}

	return &WebhookNotifier{url: cfg.URL, client: client, logger: logger}, nil
}

type transferPayload struct {
	Event     string    `json:"event"`
	DomainID  string    `json:"domain_id"`
	Domain    string    `json:"domain"`
	Owner     string    `json:"owner"`
	Registrar string    `json:"registrar"`
	AuthCode  string    `json:"auth_code"`
	SentAt    time.Time `json:"sent_at"`
}

// NotifyTransferOut sends the auth code to the registrant through the webhook
func (w *WebhookNotifier) NotifyTransferOut(ctx context.Context, rec *models.DomainRecord, authCode string) error {
	payload := transferPayload{
		Event:     "transfer_out",
		DomainID:  rec.ID,
		Domain:    rec.FQDN(),
		Owner:     rec.Owner,
		Registrar: rec.RegistrarName,
		AuthCode:  authCode,
		SentAt:    time.Now().UTC(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	w.logger.Info("transfer notification sent", "domain", rec.FQDN(), "owner", rec.Owner)
	return nil
}
