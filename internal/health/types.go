// Package health monitors external services and records a state per service.
package health

import "time"

// Status is the health state of one monitored service.
type Status string

const (
	StatusNotConfigured Status = "not_configured"
	StatusHealthy       Status = "healthy"
	StatusDegraded      Status = "degraded"
	StatusDown          Status = "down"
)

// Monitored service names.
const (
	ServiceDownloadClients = "download_client"
	ServiceDownloadPaths   = "download_paths"
	ServiceOutputPaths     = "output_paths"
)

// AllServices returns the monitored service names in display order.
func AllServices() []string {
	return []string{
		ServiceDownloadClients,
		ServiceDownloadPaths,
		ServiceOutputPaths,
	}
}

// ServiceHealth is the recorded state of one service.
type ServiceHealth struct {
	Service   string    `json:"service"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// HasIssue reports whether the state needs operator attention.
func (h ServiceHealth) HasIssue() bool {
	return h.Status == StatusDegraded || h.Status == StatusDown
}
