package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/models"
)

type auditStamp struct {
	Time int64 `json:"time"` // epoch millis
}

type ugcElement struct {
	ID              string                  `json:"id"`
	Created         auditStamp              `json:"created"`
	SpecificContent map[string]shareContent `json:"specificContent"`
}

type commentElement struct {
	URN     string     `json:"$URN"`
	ID      string     `json:"id"`
	Actor   string     `json:"actor"`
	Message ugcText    `json:"message"`
	Created auditStamp `json:"created"`
}

type commentRequest struct {
	Actor         string  `json:"actor"`
	Message       ugcText `json:"message"`
	ParentComment string  `json:"parentComment,omitempty"`
}

// ListRecentPosts returns the member's posts created after since, newest first as LinkedIn orders them
func (c *Client) ListRecentPosts(ctx context.Context, since time.Time, count int) ([]models.OwnPost, error) {
	if count <= 0 {
		count = 10
	}
	if count > 50 {
		count = 50
	}

	author, err := c.UserURN(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("q", "author")
	query.Set("author", author)
	query.Set("count", strconv.Itoa(count))

	_, body, err := c.do(ctx, http.MethodGet, "/ugcPosts", query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}

	var result struct {
		Elements []ugcElement `json:"elements"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apierr.Wrap(apierr.StagePublish, apierr.KindMalformedResponse, fmt.Errorf("failed to parse posts response: %w", err))
	}

	posts := make([]models.OwnPost, 0, len(result.Elements))
	for _, el := range result.Elements {
		created := time.UnixMilli(el.Created.Time)
		if !created.After(since) {
			continue
		}
		posts = append(posts, models.OwnPost{
			URN:       el.ID,
			Text:      el.SpecificContent[shareContentKey].ShareCommentary.Text,
			CreatedAt: created,
		})
	}

	c.log.Debug().
		Int("fetched", len(result.Elements)).
		Int("recent", len(posts)).
		Msg("Fetched own posts")
	return posts, nil
}

// ListComments returns the comments on a post
func (c *Client) ListComments(ctx context.Context, postURN string) ([]models.Comment, error) {
	query := url.Values{}
	query.Set("count", "100")

	_, body, err := c.do(ctx, http.MethodGet, "/socialActions/"+url.PathEscape(postURN)+"/comments", query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments for %s: %w", postURN, err)
	}

	var result struct {
		Elements []commentElement `json:"elements"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apierr.Wrap(apierr.StagePublish, apierr.KindMalformedResponse, fmt.Errorf("failed to parse comments response: %w", err))
	}

	comments := make([]models.Comment, 0, len(result.Elements))
	for _, el := range result.Elements {
		urn := el.URN
		if urn == "" {
			urn = "urn:li:comment:" + el.ID
		}
		comments = append(comments, models.Comment{
			URN:       urn,
			ID:        el.ID,
			PostURN:   postURN,
			ActorURN:  el.Actor,
			Text:      el.Message.Text,
			CreatedAt: time.UnixMilli(el.Created.Time),
		})
	}
	return comments, nil
}

// ReplyToComment posts text as a threaded reply to comment and returns the new comment id
func (c *Client) ReplyToComment(ctx context.Context, comment models.Comment, text string) (string, error) {
	actor, err := c.UserURN(ctx)
	if err != nil {
		return "", err
	}

	req := commentRequest{
		Actor:         actor,
		Message:       ugcText{Text: sanitizeForLinkedIn(text)},
		ParentComment: comment.URN,
	}

	header, body, err := c.do(ctx, http.MethodPost, "/socialActions/"+url.PathEscape(comment.PostURN)+"/comments", nil, req)
	if err != nil {
		return "", fmt.Errorf("failed to reply to comment %s: %w", comment.ID, err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(body, &created) == nil && created.ID != "" {
		return created.ID, nil
	}
	return header.Get("X-Restli-Id"), nil
}
