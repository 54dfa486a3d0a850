package model

import "time"

// Video is an ingested upload belonging to a tracked channel.
type Video struct {
	ID          string     `json:"id"`
	VideoID     string     `json:"videoId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Thumbnail   string     `json:"thumbnail"`
	ChannelID   string     `json:"channelId"`
	ChannelName string     `json:"channelName"`
	Views       int64      `json:"views"`
	Category    string     `json:"category,omitempty"`
	UploadedAt  time.Time  `json:"uploadedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// VideoPage is one page of a video listing.
type VideoPage struct {
	Videos []Video `json:"videos"`
	Total  int64   `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}

// VideoDetail is the response for a single video page.
type VideoDetail struct {
	Video   Video   `json:"video"`
	Related []Video `json:"related"`
}

// SearchResult is the response of a combined video/channel search.
type SearchResult struct {
	Videos   []Video   `json:"videos"`
	Channels []Channel `json:"channels"`
}
