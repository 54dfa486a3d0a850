package model

import "time"

// FetchLog is one append-only row per channel per ingestion run.
type FetchLog struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"runId"`
	ChannelID      string    `json:"channelId"`
	VideosFound    int       `json:"videosFound"`
	NewVideos      int       `json:"newVideos"`
	ErrorCount     int       `json:"errorCount"`
	Error          *string   `json:"error,omitempty"`
	QuotaRemaining *int64    `json:"quotaRemaining,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// QuotaUsage tracks the remaining daily allowance of an external API.
type QuotaUsage struct {
	APIName        string    `json:"apiName"`
	QuotaRemaining int64     `json:"quotaRemaining"`
	QuotaResetAt   time.Time `json:"quotaResetAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// StatsResponse is the admin dashboard summary.
type StatsResponse struct {
	TotalVideos   int64       `json:"totalVideos"`
	TotalChannels int64       `json:"totalChannels"`
	TotalUsers    int64       `json:"totalUsers"`
	TotalComments int64       `json:"totalComments"`
	OpenReports   int64       `json:"openReports"`
	VideosLast24h int64       `json:"videosLast24h"`
	Quota         *QuotaUsage `json:"quota,omitempty"`
}
