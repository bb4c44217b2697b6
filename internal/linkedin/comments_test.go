package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/models"
)

func TestListRecentPosts(t *testing.T) {
	now := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "author", r.URL.Query().Get("q"))
		assert.Equal(t, "urn:li:person:abc123", r.URL.Query().Get("author"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))
		fmt.Fprintf(w, `{"elements":[
			{"id":"urn:li:share:2","created":{"time":%d},"specificContent":{"com.linkedin.ugc.ShareContent":{"shareCommentary":{"text":"new post"}}}},
			{"id":"urn:li:share:1","created":{"time":%d},"specificContent":{"com.linkedin.ugc.ShareContent":{"shareCommentary":{"text":"old post"}}}}
		]}`, now.Add(-time.Hour).UnixMilli(), now.Add(-48*time.Hour).UnixMilli())
	})
	c := newTestClient(t, mux)

	posts, err := c.ListRecentPosts(context.Background(), now.Add(-24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "urn:li:share:2", posts[0].URN)
	assert.Equal(t, "new post", posts[0].Text)
}

func TestListComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /socialActions/{urn}/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "urn:li:share:2", r.PathValue("urn"))
		_, _ = w.Write([]byte(`{"elements":[
			{"$URN":"urn:li:comment:(urn:li:activity:9,111)","id":"111","actor":"urn:li:person:zz","message":{"text":"Great point"},"created":{"time":1700000000000}},
			{"id":"222","actor":"urn:li:person:abc123","message":{"text":"thanks"}}
		]}`))
	})
	c := newTestClient(t, mux)

	comments, err := c.ListComments(context.Background(), "urn:li:share:2")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "urn:li:comment:(urn:li:activity:9,111)", comments[0].URN)
	assert.Equal(t, "Great point", comments[0].Text)
	assert.Equal(t, "urn:li:person:zz", comments[0].ActorURN)
	assert.Equal(t, "urn:li:share:2", comments[0].PostURN)
	assert.Equal(t, "urn:li:comment:222", comments[1].URN)
}

func TestReplyToComment(t *testing.T) {
	var got commentRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /socialActions/{urn}/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "urn:li:share:2", r.PathValue("urn"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"333"}`))
	})
	c := newTestClient(t, mux)

	id, err := c.ReplyToComment(context.Background(), models.Comment{
		URN:     "urn:li:comment:111",
		ID:      "111",
		PostURN: "urn:li:share:2",
	}, "Thanks!")
	require.NoError(t, err)
	assert.Equal(t, "333", id)
	assert.Equal(t, "urn:li:person:abc123", got.Actor)
	assert.Equal(t, "Thanks!", got.Message.Text)
	assert.Equal(t, "urn:li:comment:111", got.ParentComment)
}
