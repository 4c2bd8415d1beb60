package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationProvider is an external channel that receives escalations.
type NotificationProvider struct {
	ID       string `gorm:"primaryKey" json:"id"`
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`     // discord, slack, gotify, telegram, generic, webhook
	URL      string `json:"url"`      // shoutrrr URL or webhook URL
	Config   string `json:"config"`   // JSON payload template for custom webhooks
	Template string `json:"template"` // minimal|detailed|custom
	Enabled  bool   `json:"enabled"`

	// Escalations below this severity are not delivered. Empty means HIGH.
	MinSeverity Severity `json:"min_severity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Accepts reports whether an escalation of the given severity goes to this provider.
func (n *NotificationProvider) Accepts(sev Severity) bool {
	min := n.MinSeverity
	if !min.Valid() {
		min = SeverityHigh
	}
	return sev.AtLeast(min)
}

func (n *NotificationProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if strings.TrimSpace(n.Template) == "" {
		if strings.TrimSpace(n.Config) != "" {
			n.Template = "custom"
		} else {
			n.Template = "minimal"
		}
	}
	return
}
