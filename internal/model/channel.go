package model

import "time"

// Channel is a tracked external video channel.
type Channel struct {
	ID              string     `json:"id"`
	ChannelID       string     `json:"channelId"`
	Title           string     `json:"title"`
	ThumbnailURL    string     `json:"thumbnailUrl"`
	Description     string     `json:"description,omitempty"`
	DefaultCategory string     `json:"defaultCategory,omitempty"`
	LastFetch       *time.Time `json:"lastFetch,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
}

// ChannelDetail is the response for a channel page.
type ChannelDetail struct {
	Channel Channel `json:"channel"`
	Videos  []Video `json:"videos"`
}

// AddChannelRequest is the admin request body for tracking a new channel.
type AddChannelRequest struct {
	ChannelID string `json:"channelId" validate:"required,min=2,max=64,channelid"`
	Category  string `json:"category" validate:"omitempty,max=32"`
	FetchNow  bool   `json:"fetchNow"`
}
