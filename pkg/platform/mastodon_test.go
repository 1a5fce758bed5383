package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedialt/pkg/config"
	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
	"fedialt/pkg/transport"
)

const defaultTestTimeout = 10 * time.Second

// mockRoundTripper intercepts HTTP requests so adapter tests never touch
// the network.
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func jsonResponse(statusCode int, v interface{}) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// newTestSession creates a session whose requests are answered by handler.
func newTestSession(t *testing.T, handler func(req *http.Request) (*http.Response, error)) *transport.Session {
	t.Helper()
	session := transport.NewSession(config.HTTPConfig{
		Timeout:   defaultTestTimeout,
		UserAgent: "fedialt-test",
	}, logger.NewTestLogger())
	session.SetTransport(&mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		resp, err := handler(req)
		if resp != nil {
			resp.Request = req
		}
		return resp, err
	}})
	t.Cleanup(session.Close)
	return session
}

func newMastodonForTest(t *testing.T, handler func(req *http.Request) (*http.Response, error)) Adapter {
	t.Helper()
	session := newTestSession(t, handler)
	adapter, err := NewMastodon(config.PlatformConfig{
		InstanceURL: "https://mastodon.social",
		AccessToken: "test-token",
	}, session, logger.NewTestLogger())
	require.NoError(t, err)
	return adapter
}

func TestMastodonGetUserPosts(t *testing.T) {
	var gotURL, gotAuth string
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		gotAuth = req.Header.Get("Authorization")
		return jsonResponse(200, []Post{
			{ID: "2", Content: "newest"},
			{ID: "1", Content: "older"},
		}), nil
	})

	posts, err := adapter.GetUserPosts(context.Background(), "12345", 5)
	require.NoError(t, err)

	assert.Equal(t, "https://mastodon.social/api/v1/accounts/12345/statuses?limit=5", gotURL)
	assert.Equal(t, "Bearer test-token", gotAuth)
	require.Len(t, posts, 2)
	assert.Equal(t, "2", posts[0].ID, "newest first")
}

func TestMastodonGetUserPostsClampsLimit(t *testing.T) {
	var gotURL string
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return jsonResponse(200, []Post{}), nil
	})

	_, err := adapter.GetUserPosts(context.Background(), "12345", 500)
	require.NoError(t, err)
	assert.Contains(t, gotURL, "limit=40")

	_, err = adapter.GetUserPosts(context.Background(), "12345", 0)
	require.NoError(t, err)
	assert.Contains(t, gotURL, "limit=20")
}

func TestMastodonGetPostByID(t *testing.T) {
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/statuses/777", req.URL.Path)
		return jsonResponse(200, Post{
			ID:      "777",
			Content: "<p>hello</p>",
			Attachments: []Attachment{
				{ID: "m1", Type: "image", URL: "https://files.example/1.jpg"},
			},
		}), nil
	})

	post, err := adapter.GetPostByID(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "777", post.ID)
	require.Len(t, post.Attachments, 1)
	assert.Equal(t, "m1", post.Attachments[0].ID)
}

func TestMastodonUpdateMediaCaption(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		gotMethod = req.Method
		gotPath = req.URL.Path
		data, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(data, &gotBody)
		return jsonResponse(200, Attachment{ID: "m1", Description: "a red bicycle"}), nil
	})

	ok, err := adapter.UpdateMediaCaption(context.Background(), "m1", "a red bicycle")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/v1/media/m1", gotPath)
	assert.Equal(t, "a red bicycle", gotBody["description"])
}

func TestMastodonUpdatePostCarriesMediaAttributes(t *testing.T) {
	var gotBody map[string]interface{}
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/api/v1/statuses/777", req.URL.Path)
		data, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(data, &gotBody)
		return jsonResponse(200, Post{ID: "777"}), nil
	})

	post := &Post{
		ID:      "777",
		Content: "caption me",
		Attachments: []Attachment{
			{ID: "m1", Type: "image", Description: "a red bicycle"},
		},
	}

	ok, err := adapter.UpdatePost(context.Background(), "777", post)
	require.NoError(t, err)
	assert.True(t, ok)

	attrs, ok2 := gotBody["media_attributes"].([]interface{})
	require.True(t, ok2)
	require.Len(t, attrs, 1)
	attr := attrs[0].(map[string]interface{})
	assert.Equal(t, "m1", attr["id"])
	assert.Equal(t, "a red bicycle", attr["description"])
}

func TestMastodonUpdatePostNil(t *testing.T) {
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for a nil post")
		return nil, nil
	})

	ok, err := adapter.UpdatePost(context.Background(), "777", nil)
	assert.False(t, ok)
	var adapterErr *federr.AdapterError
	require.ErrorAs(t, err, &adapterErr)
}

func TestMastodonErrorMapping(t *testing.T) {
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(404, map[string]string{"error": "Record not found"})
		return resp, nil
	})

	_, err := adapter.GetPostByID(context.Background(), "missing")

	var httpErr *federr.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, federr.KindNotFound, httpErr.Kind)
}

func TestMastodonRateLimitInfo(t *testing.T) {
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, Post{}), nil
	})

	reset := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "300")
	headers.Set("X-RateLimit-Remaining", "123")
	headers.Set("X-RateLimit-Reset", reset.Format(time.RFC3339))

	info := adapter.RateLimitInfo(headers)
	assert.Equal(t, 300, info["limit"])
	assert.Equal(t, 123, info["remaining"])
	assert.Equal(t, int(reset.Unix()), info["reset"])

	assert.Empty(t, adapter.RateLimitInfo(http.Header{}), "absent headers yield an empty map")
}

func TestMastodonCallsFlowThroughSession(t *testing.T) {
	called := false
	session := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		called = true
		resp := jsonResponse(200, Post{ID: "1"})
		resp.Header.Set("X-RateLimit-Remaining", "77")
		return resp, nil
	})

	var seen []string
	session.OnResponse(func(h http.Header) {
		seen = append(seen, h.Get("X-RateLimit-Remaining"))
	})

	adapter, err := NewMastodon(config.PlatformConfig{
		InstanceURL: "https://mastodon.social",
		AccessToken: "test-token",
	}, session, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = adapter.GetPostByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"77"}, seen, "library calls report headers through the session hook")

	session.Close()
	called = false
	_, err = adapter.GetPostByID(context.Background(), "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrSessionClosed)
	assert.False(t, called, "closed session fails before reaching the wire")
}

func TestMastodonSupportsDirectCaption(t *testing.T) {
	adapter := newMastodonForTest(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, Post{}), nil
	})
	assert.True(t, adapter.SupportsDirectCaption())
}
