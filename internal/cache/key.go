package cache

import (
	"sort"
	"strings"
	"time"
)

// Entities name the cached resources. Invalidation works per entity.
const (
	EntityVideos        = "videos"
	EntityVideo         = "video"
	EntityChannels      = "channels"
	EntityChannel       = "channel"
	EntitySearch        = "search"
	EntityComments      = "comments"
	EntityTestimonials  = "testimonials"
	EntityReports       = "reports"
	EntityStats         = "stats"
	EntityProfile       = "profile"
	EntitySubscriptions = "subscriptions"
	EntityHidden        = "hidden"
	EntityNotifications = "notifications"
)

// Key identifies a cached query result: an entity plus named parameters,
// optionally scoped to one user.
type Key struct {
	User   string
	Entity string
	Params map[string]string
}

// NewKey builds a key from alternating name/value pairs. A trailing name
// without a value is ignored.
func NewKey(entity string, kv ...string) Key {
	k := Key{Entity: entity}
	if len(kv) >= 2 {
		k.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			k.Params[kv[i]] = kv[i+1]
		}
	}
	return k
}

// ForUser scopes the key to a user so ClearUser removes it.
func (k Key) ForUser(userID string) Key {
	k.User = userID
	return k
}

// String renders the key as user:<id>:entity:name=value:... with parameters
// in name order, so equal keys always render identically.
func (k Key) String() string {
	var b strings.Builder
	if k.User != "" {
		b.WriteString(UserPrefix(k.User))
	}
	b.WriteString(k.Entity)
	b.WriteByte(':')

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(k.Params[name])
	}
	return b.String()
}

// CommentsKey is the key of a video's comment list.
func CommentsKey(videoID string) Key {
	return NewKey(EntityComments, "video", videoID)
}

// NotificationsKey is the key of a user's notification list.
func NotificationsKey(userID string) Key {
	return NewKey(EntityNotifications).ForUser(userID)
}

// UnreadKey is the key of a user's unread notification count.
func UnreadKey(userID string) Key {
	return NewKey(EntityNotifications, "unread", "true").ForUser(userID)
}

// UserPrefix is the prefix shared by every key scoped to userID.
func UserPrefix(userID string) string {
	return "user:" + userID + ":"
}

// matchesEntity reports whether a rendered key belongs to entity, scoped or not.
func matchesEntity(key, entity string) bool {
	prefix := entity + ":"
	if strings.HasPrefix(key, prefix) {
		return true
	}
	if !strings.HasPrefix(key, "user:") {
		return false
	}
	rest := strings.TrimPrefix(key, "user:")
	i := strings.IndexByte(rest, ':')
	return i >= 0 && strings.HasPrefix(rest[i+1:], prefix)
}

// Policy controls how long a result stays fresh and how often a failed
// fetch is retried.
type Policy struct {
	StaleTime time.Duration
	Retry     int
}

var (
	VideoList   = Policy{StaleTime: 60 * time.Second, Retry: 2}
	VideoDetail = Policy{StaleTime: 5 * time.Minute, Retry: 1}
	ChannelList = Policy{StaleTime: 5 * time.Minute, Retry: 2}
	Search      = Policy{StaleTime: 30 * time.Second, Retry: 1}
	UserScoped  = Policy{StaleTime: 30 * time.Second, Retry: 3}
)

// maxStaleTime bounds how long the local tier keeps any entry.
const maxStaleTime = 5 * time.Minute
