package youtube

import (
	"context"
	"strings"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
)

// ChannelInfo is the channel metadata needed to start tracking a channel.
type ChannelInfo struct {
	ChannelID         string
	Title             string
	Description       string
	Thumbnail         string
	UploadsPlaylistID string
}

// Upload is one entry of a channel's uploads playlist.
type Upload struct {
	VideoID      string
	Title        string
	Description  string
	Thumbnail    string
	ChannelTitle string
	PublishedAt  time.Time
}

// VideoStats carries refreshed details for a stored video.
type VideoStats struct {
	VideoID   string
	Thumbnail string
	Views     int64
}

// ChannelInfo looks up a channel by id or by @handle.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, error) {
	var resp *yt.ChannelListResponse
	err := c.call(ctx, func(svc *yt.Service) error {
		call := svc.Channels.List([]string{"snippet", "contentDetails"}).Context(ctx)
		if strings.HasPrefix(channelID, "@") {
			call = call.ForHandle(channelID)
		} else {
			call = call.Id(channelID)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, apperr.NotFound("Channel not found on YouTube")
	}

	ch := resp.Items[0]
	info := &ChannelInfo{ChannelID: ch.Id}
	if ch.Snippet != nil {
		info.Title = ch.Snippet.Title
		info.Description = ch.Snippet.Description
		info.Thumbnail = bestThumbnail(ch.Snippet.Thumbnails)
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		info.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return info, nil
}

// ListUploads returns up to limit of the channel's most recent uploads, newest
// first. Private and deleted entries are skipped.
func (c *Client) ListUploads(ctx context.Context, channelID string, limit int) ([]Upload, error) {
	playlistID, err := c.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var uploads []Upload
	pageToken := ""
	for len(uploads) < limit {
		var resp *yt.PlaylistItemListResponse
		err := c.call(ctx, func(svc *yt.Service) error {
			call := svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(pageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			if u, ok := toUpload(item); ok && len(uploads) < limit {
				uploads = append(uploads, u)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return uploads, nil
}

// uploadsPlaylist derives the uploads playlist of a UC... channel id without
// an API call, and asks the API for any other id form.
func (c *Client) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	if strings.HasPrefix(channelID, "UC") && len(channelID) > 2 {
		return "UU" + channelID[2:], nil
	}
	info, err := c.ChannelInfo(ctx, channelID)
	if err != nil {
		return "", err
	}
	if info.UploadsPlaylistID == "" {
		return "", apperr.NotFound("Channel has no uploads playlist")
	}
	return info.UploadsPlaylistID, nil
}

func toUpload(item *yt.PlaylistItem) (Upload, bool) {
	if item == nil || item.Snippet == nil {
		return Upload{}, false
	}
	sn := item.Snippet
	if sn.Title == "Private video" || sn.Title == "Deleted video" {
		return Upload{}, false
	}

	u := Upload{
		Title:        sn.Title,
		Description:  sn.Description,
		Thumbnail:    bestThumbnail(sn.Thumbnails),
		ChannelTitle: sn.ChannelTitle,
	}
	published := sn.PublishedAt
	if sn.ResourceId != nil {
		u.VideoID = sn.ResourceId.VideoId
	}
	if cd := item.ContentDetails; cd != nil {
		if u.VideoID == "" {
			u.VideoID = cd.VideoId
		}
		if cd.VideoPublishedAt != "" {
			published = cd.VideoPublishedAt
		}
	}
	if u.VideoID == "" {
		return Upload{}, false
	}
	if t, err := time.Parse(time.RFC3339, published); err == nil {
		u.PublishedAt = t
	}
	return u, true
}

// VideoDetails returns thumbnails and view counts for ids, batched by 50.
// Ids the API does not return are omitted.
func (c *Client) VideoDetails(ctx context.Context, ids []string) ([]VideoStats, error) {
	var out []VideoStats
	for start := 0; start < len(ids); start += pageSize {
		batch := ids[start:min(start+pageSize, len(ids))]

		var resp *yt.VideoListResponse
		err := c.call(ctx, func(svc *yt.Service) error {
			var err error
			resp, err = svc.Videos.List([]string{"snippet", "statistics"}).
				Id(batch...).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return out, err
		}

		for _, v := range resp.Items {
			s := VideoStats{VideoID: v.Id}
			if v.Snippet != nil {
				s.Thumbnail = bestThumbnail(v.Snippet.Thumbnails)
			}
			if v.Statistics != nil {
				s.Views = int64(v.Statistics.ViewCount)
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func bestThumbnail(td *yt.ThumbnailDetails) string {
	if td == nil {
		return ""
	}
	for _, t := range []*yt.Thumbnail{td.Maxres, td.Standard, td.High, td.Medium, td.Default} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}
