package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Channel 通知渠道接口（每渠道一个实现，如 email、sms）
// 投递为单次尽力而为：失败记录结果，不在此重试
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// ============================================
// Email 渠道（SMTP）
// ============================================

// EmailChannel SMTP 邮件通知渠道
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	logger   *zap.Logger
}

// NewEmailChannel 创建邮件通知渠道
func NewEmailChannel(host string, port int, username, password, from, to string, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   logger,
	}
}

// Name 渠道名
func (c *EmailChannel) Name() string {
	return "email"
}

// Send 发送 HTML 报警邮件
func (c *EmailChannel) Send(ctx context.Context, subject, body string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		c.from, c.to, subject, body,
	))

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	auth := smtp.PlainAuth("", c.username, c.password, c.host)

	if err := smtp.SendMail(addr, auth, c.from, []string{c.to}, msg); err != nil {
		return fmt.Errorf("failed to send email alert: %w", err)
	}

	c.logger.Info("Email alert sent",
		zap.String("to", c.to),
		zap.String("subject", subject),
	)
	return nil
}

// ============================================
// SMS 渠道（Twilio REST API）
// ============================================

// SMSChannel Twilio 短信通知渠道
type SMSChannel struct {
	httpClient *resty.Client
	accountSID string
	from       string
	to         string
	logger     *zap.Logger
}

// twilioMessageResponse Twilio 消息创建响应
type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"` // 错误信息（失败时）
}

// NewSMSChannel 创建短信通知渠道
func NewSMSChannel(accountSID, authToken, from, to string, logger *zap.Logger) *SMSChannel {
	client := resty.New().
		SetBaseURL("https://api.twilio.com/2010-04-01").
		SetTimeout(10 * time.Second).
		SetBasicAuth(accountSID, authToken)

	return &SMSChannel{
		httpClient: client,
		accountSID: accountSID,
		from:       from,
		to:         to,
		logger:     logger,
	}
}

// Name 渠道名
func (c *SMSChannel) Name() string {
	return "sms"
}

// Send 发送短信（短信只用正文，忽略 subject）
func (c *SMSChannel) Send(ctx context.Context, subject, body string) error {
	var response twilioMessageResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   c.to,
			"From": c.from,
			"Body": body,
		}).
		SetResult(&response).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", c.accountSID))

	if err != nil {
		return fmt.Errorf("failed to send sms alert: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode(), response.Message)
	}

	c.logger.Info("SMS alert sent",
		zap.String("sid", response.SID),
		zap.String("to", c.to),
	)
	return nil
}
