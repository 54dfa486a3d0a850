package model

import "time"

// Profile is the per-user record; IsAdmin is the only source of admin status.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	IsAdmin     bool      `json:"isAdmin"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Notification tells a subscriber about a newly ingested video.
type Notification struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	VideoID      string    `json:"videoId"`
	ChannelID    string    `json:"channelId"`
	VideoTitle   string    `json:"videoTitle"`
	Thumbnail    string    `json:"thumbnail"`
	ChannelTitle string    `json:"channelTitle"`
	IsRead       bool      `json:"isRead"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NotificationList is the response for the notifications endpoint.
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	Unread        int64          `json:"unread"`
}

// SessionResponse describes the caller's authentication state.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	IsAdmin       bool   `json:"isAdmin"`
}
