package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// SMSConfig configures a Twilio-compatible SMS gateway.
type SMSConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

// SMSSender delivers notifications through an HTTP SMS gateway. Attempts are
// never retried here.
type SMSSender struct {
	client *resty.Client
	cfg    SMSConfig
}

type smsResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

// NewSMSSender creates an SMS gateway sender.
func NewSMSSender(cfg SMSConfig) *SMSSender {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(10*time.Second).
		SetRetryCount(0).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "vitalwatch/1.0")
	return &SMSSender{client: client, cfg: cfg}
}

func (s *SMSSender) Channel() model.Channel { return model.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, target string, msg Message) error {
	to := strings.TrimSpace(target)
	if to == "" {
		return errors.New("sms recipient is empty")
	}
	var result smsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": s.cfg.From,
			"Body": smsBody(msg),
		}).
		SetResult(&result).
		SetError(&result).
		SetPathParam("account", s.cfg.AccountSID).
		Post("/Accounts/{account}/Messages.json")
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.IsError() {
		detail := result.ErrorMessage
		if detail == "" {
			detail = result.Message
		}
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode(), detail)
	}
	if result.ErrorCode != nil {
		return fmt.Errorf("sms gateway error %d: %s", *result.ErrorCode, result.ErrorMessage)
	}
	return nil
}

// smsBody collapses a message into a single text, title first.
func smsBody(msg Message) string {
	if msg.Title == "" {
		return msg.Body
	}
	return msg.Title + "\n" + msg.Body
}
