package alerts

import (
	"fmt"
	"strings"
	"time"
)

// Severity 告警级别
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Status 告警状态
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Source 告警来源
type Source string

const (
	SourceOpsgenie      Source = "opsgenie"
	SourceAWSCloudWatch Source = "aws_cloudwatch"
	SourceAzureMonitor  Source = "azure_monitor"
	SourceGCPMonitoring Source = "gcp_monitoring"
)

// CloudProvider 云厂商
type CloudProvider string

const (
	CloudAWS   CloudProvider = "aws"
	CloudAzure CloudProvider = "azure"
	CloudGCP   CloudProvider = "gcp"
)

// NotificationSeverity 通知级别
type NotificationSeverity string

const (
	NotifyInfo     NotificationSeverity = "info"
	NotifyWarning  NotificationSeverity = "warning"
	NotifyError    NotificationSeverity = "error"
	NotifyCritical NotificationSeverity = "critical"
)

var (
	severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
	statuses   = []Status{StatusOpen, StatusAcknowledged, StatusResolved}
	sources    = []Source{SourceOpsgenie, SourceAWSCloudWatch, SourceAzureMonitor, SourceGCPMonitoring}
	providers  = []CloudProvider{CloudAWS, CloudAzure, CloudGCP}
)

// ParseStatus 解析状态字符串（大小写不敏感）
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range statuses {
		if v == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Notification maps an alert severity to the notification severity shown to
// operators. Unknown severities map to info.
func (s Severity) Notification() NotificationSeverity {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityCritical:
		return NotifyCritical
	case SeverityHigh:
		return NotifyError
	case SeverityMedium:
		return NotifyWarning
	default:
		return NotifyInfo
	}
}

// Alert 上游告警记录
type Alert struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Severity      Severity      `json:"severity"`
	Status        Status        `json:"status"`
	Source        Source        `json:"source,omitempty"`
	CloudProvider CloudProvider `json:"cloud_provider,omitempty"`
	ResourceID    string        `json:"resource_id,omitempty"`
	ResourceType  string        `json:"resource_type,omitempty"`
	OrgID         string        `json:"org_id"`
	IsResolved    bool          `json:"is_resolved"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
}

func (a Alert) RecordID() string       { return a.ID }
func (a Alert) RecordTenantID() string { return a.OrgID }

// ListResult `GET /alerts` 响应
type ListResult struct {
	Alerts     []Alert `json:"alerts"`
	TotalCount int     `json:"total_count"`
}

// Summary is the upstream acknowledgement of a refresh; its shape is owned by
// the upstream and passed through untouched.
type Summary map[string]any

// ValidationResult `POST /alerts/validate` 响应
type ValidationResult struct {
	ValidCount   int `json:"valid_count"`
	InvalidCount int `json:"invalid_count"`
}

// Patch 告警更新内容，nil 字段不修改
type Patch struct {
	Status     *Status `json:"status,omitempty"`
	IsResolved *bool   `json:"is_resolved,omitempty"`
}

// FilterOptions 可选过滤值
type FilterOptions struct {
	Severity      []Severity      `json:"severity"`
	Status        []Status        `json:"status"`
	Source        []Source        `json:"source"`
	CloudProvider []CloudProvider `json:"cloud_provider"`
}

// Options 返回告警列表可用的过滤值
func Options() FilterOptions {
	return FilterOptions{
		Severity:      append([]Severity(nil), severities...),
		Status:        append([]Status(nil), statuses...),
		Source:        append([]Source(nil), sources...),
		CloudProvider: append([]CloudProvider(nil), providers...),
	}
}

// Stats 告警统计
type Stats struct {
	Total        int `json:"total"`
	Critical     int `json:"critical"`
	High         int `json:"high"`
	Medium       int `json:"medium"`
	Low          int `json:"low"`
	Open         int `json:"open"`
	Acknowledged int `json:"acknowledged"`
	Resolved     int `json:"resolved"`
}

// Summarize counts alerts by severity and status. Values are compared
// case-insensitively; unknown values only count toward Total.
func Summarize(alerts []Alert) Stats {
	var st Stats
	for _, a := range alerts {
		st.Total++
		switch Severity(strings.ToLower(string(a.Severity))) {
		case SeverityCritical:
			st.Critical++
		case SeverityHigh:
			st.High++
		case SeverityMedium:
			st.Medium++
		case SeverityLow:
			st.Low++
		}
		switch Status(strings.ToLower(string(a.Status))) {
		case StatusOpen:
			st.Open++
		case StatusAcknowledged:
			st.Acknowledged++
		case StatusResolved:
			st.Resolved++
		}
	}
	return st
}
