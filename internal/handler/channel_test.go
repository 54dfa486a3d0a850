package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YidKik/yidvid-sub003/internal/model"
)

func TestChannelHandler(t *testing.T) {
	channels := &fakeChannels{}
	h := NewChannelHandler(channels)
	app := newTestApp()
	app.Get("/api/channels", h.List)
	app.Get("/api/channels/:channelId", h.Get)

	resp, env := do(t, app, http.MethodGet, "/api/channels", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.Channel](t, env), 1)

	resp, env = do(t, app, http.MethodGet, "/api/channels/UCabc123?page=3", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "UCabc123", decode[model.ChannelDetail](t, env).Channel.ChannelID)
	assert.Equal(t, 3, channels.page)

	resp, _ = do(t, app, http.MethodGet, "/api/channels/UCmissing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/channels/UCabc123?page=x", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchHandler_BlankQuery(t *testing.T) {
	search := &fakeSearch{}
	app := newTestApp()
	app.Get("/api/search", NewSearchHandler(search).Search)

	resp, env := do(t, app, http.MethodGet, "/api/search?q=torah", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "torah", search.query)
	assert.JSONEq(t, `{"videos":[],"channels":[]}`, string(env.Data))

	resp, env = do(t, app, http.MethodGet, "/api/search", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}
