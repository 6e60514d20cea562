package dispatcher

import (
	"fmt"
	"time"

	"carelink-monitor/internal/config"
	"carelink-monitor/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MailRequest 邮件网关 API 请求
type MailRequest struct {
	Sender   string   `json:"sender"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	Priority string   `json:"priority"`
}

// MailResponse 邮件网关 API 响应
type MailResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// EmailDispatcher 邮件外发适配器
// 调用邮件网关 HTTP API；尽力而为，外发失败不影响落库
type EmailDispatcher struct {
	httpClient *resty.Client
	sender     string
	logger     *zap.Logger
}

// NewEmailDispatcher 创建邮件外发适配器
// cfg.Mail.BaseURL 为空时返回 nil，调度器按未配置处理（只落库不外发）
func NewEmailDispatcher(cfg *config.Config, logger *zap.Logger) *EmailDispatcher {
	if cfg.Mail.BaseURL == "" {
		return nil
	}

	client := resty.New().
		SetBaseURL(cfg.Mail.BaseURL).
		SetTimeout(time.Duration(cfg.Mail.Timeout) * time.Second).
		SetRetryCount(cfg.Mail.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.Mail.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.Mail.APIKey)
	}

	return &EmailDispatcher{
		httpClient: client,
		sender:     cfg.Mail.Sender,
		logger:     logger,
	}
}

// Send 向紧急联系人外发一条规则命中结果
// 只给开启 receive_email 且有邮箱地址的联系人发送；无可达联系人不算失败
func (d *EmailDispatcher) Send(contacts []models.EmergencyContact, subjectName string, finding *models.Finding) error {
	if finding == nil {
		return fmt.Errorf("finding is required")
	}

	to := []string{}
	for _, contact := range contacts {
		if contact.ReceiveEmail && contact.Email != "" {
			to = append(to, contact.Email)
		}
	}
	if len(to) == 0 {
		d.logger.Debug("No reachable contacts for finding",
			zap.String("subject_id", finding.SubjectID),
			zap.String("rule_id", finding.RuleID),
		)
		return nil
	}

	request := MailRequest{
		Sender:   d.sender,
		To:       to,
		Subject:  fmt.Sprintf("[CareLink] %s alert for %s", finding.Category, subjectName),
		Body:     finding.Message,
		Priority: finding.Severity,
	}

	var response MailResponse
	resp, err := d.httpClient.R().
		SetBody(request).
		SetResult(&response).
		Post("/v1/mail/send")

	if err != nil {
		d.logger.Error("Mail gateway call failed",
			zap.String("subject_id", finding.SubjectID),
			zap.String("rule_id", finding.RuleID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call mail gateway: %w", err)
	}

	if resp.StatusCode() >= 400 || response.Status != 0 {
		d.logger.Error("Mail gateway returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("status", response.Status),
			zap.String("msg", response.Msg),
		)
		return fmt.Errorf("mail gateway error: %s (status: %d)", response.Msg, response.Status)
	}

	d.logger.Info("Dispatch sent",
		zap.String("subject_id", finding.SubjectID),
		zap.String("rule_id", finding.RuleID),
		zap.Int("recipient_count", len(to)),
	)

	return nil
}
