// Package linkedin publishes shares and manages comments through the LinkedIn REST API.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

const restliVersion = "2.0.0"

// LinkedIn content limits
const maxCommentaryLength = 3000

// TokenProvider supplies the bearer token of each request
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client handles LinkedIn API requests
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiVersion  string
	visibility  string
	tokens      TokenProvider
	rateLimiter *ratelimit.MultiLimiter
	quota       *ratelimit.Quota
	log         *logger.Logger

	mu     sync.Mutex
	userID string
}

// NewClient creates a new LinkedIn API client. limiter may be nil.
func NewClient(cfg config.LinkedInConfig, tokens TokenProvider, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	visibility := cfg.Visibility
	if visibility == "" {
		visibility = "PUBLIC"
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		apiVersion:  cfg.APIVersion,
		visibility:  visibility,
		tokens:      tokens,
		rateLimiter: limiter,
		quota:       ratelimit.NewQuota(),
		log:         log.WithComponent("linkedin"),
	}
}

// Quota exposes the server-reported request quota
func (c *Client) Quota() *ratelimit.Quota {
	return c.quota
}

// do performs an authenticated request and returns the response body of a 2xx reply.
// Non-2xx replies and transport failures come back as classified publish errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (http.Header, []byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterLinkedIn); err != nil {
			return nil, nil, fmt.Errorf("rate limit error: %w", err)
		}
	}
	if err := c.quota.Wait(ctx); err != nil {
		return nil, nil, err
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	if c.apiVersion != "" {
		req.Header.Set("LinkedIn-Version", c.apiVersion)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Making LinkedIn API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apierr.FromTransport(apierr.StagePublish, err)
	}
	defer resp.Body.Close()

	c.quota.Observe(resp.Header)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apierr.FromTransport(apierr.StagePublish, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(respBody)).
			Msg("LinkedIn API error")
		return nil, nil, apierr.FromStatus(apierr.StagePublish, resp.StatusCode, string(respBody))
	}

	return resp.Header, respBody, nil
}

// Profile represents the OpenID Connect userinfo of the authenticated member
type Profile struct {
	Sub   string `json:"sub"` // LinkedIn member ID
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetProfile retrieves the authenticated member's profile
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	_, body, err := c.do(ctx, http.MethodGet, "/userinfo", nil, nil)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, apierr.Wrap(apierr.StagePublish, apierr.KindMalformedResponse, fmt.Errorf("failed to decode profile: %w", err))
	}
	if profile.Sub == "" {
		return nil, apierr.New(apierr.StagePublish, apierr.KindMalformedResponse, "userinfo has no member id")
	}

	c.mu.Lock()
	c.userID = profile.Sub
	c.mu.Unlock()
	return &profile, nil
}

// ValidateToken probes the userinfo endpoint with the current token
func (c *Client) ValidateToken(ctx context.Context) (*Profile, error) {
	profile, err := c.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("name", profile.Name).Msg("Token validated")
	return profile, nil
}

// UserURN returns the person URN of the authenticated member. The profile is fetched once.
func (c *Client) UserURN(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.userID
	c.mu.Unlock()

	if id == "" {
		profile, err := c.GetProfile(ctx)
		if err != nil {
			return "", err
		}
		id = profile.Sub
	}
	return "urn:li:person:" + id, nil
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string   `json:"status"`
	Description ugcText  `json:"description"`
	OriginalURL string   `json:"originalUrl"`
	Title       ugcText  `json:"title"`
	Thumbnails  []ugcURL `json:"thumbnails,omitempty"`
}

type ugcURL struct {
	URL string `json:"url"`
}

type shareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

const (
	shareContentKey = "com.linkedin.ugc.ShareContent"
	visibilityKey   = "com.linkedin.ugc.MemberNetworkVisibility"
)

// buildShare assembles the ugcPosts body. A link becomes an ARTICLE share; an image without
// a link is shared as an article pointing at the image.
func buildShare(author, visibility string, draft *models.Draft, text string) ugcPost {
	content := shareContent{
		ShareCommentary:    ugcText{Text: text},
		ShareMediaCategory: "NONE",
	}

	if draft.HasMedia() {
		media := ugcMedia{
			Status:      "READY",
			Description: ugcText{Text: draft.Description},
			OriginalURL: draft.URL,
			Title:       ugcText{Text: draft.Title},
		}
		if draft.URL == "" {
			media.OriginalURL = draft.ImageURL
		} else if draft.ImageURL != "" {
			media.Thumbnails = []ugcURL{{URL: draft.ImageURL}}
		}
		content.ShareMediaCategory = "ARTICLE"
		content.Media = []ugcMedia{media}
	}

	return ugcPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]shareContent{shareContentKey: content},
		Visibility:      map[string]string{visibilityKey: visibility},
	}
}

// Publish shares a draft and returns the id LinkedIn assigned to the post
func (c *Client) Publish(ctx context.Context, draft *models.Draft) (string, error) {
	author, err := c.UserURN(ctx)
	if err != nil {
		return "", err
	}

	text := sanitizeForLinkedIn(draft.Text)
	if utf8.RuneCountInString(text) > maxCommentaryLength {
		c.log.Warn().
			Int("length", utf8.RuneCountInString(text)).
			Int("max_length", maxCommentaryLength).
			Msg("Content exceeds LinkedIn limit, truncating")
		text = truncate(text, maxCommentaryLength)
	}

	header, body, err := c.do(ctx, http.MethodPost, "/ugcPosts", nil, buildShare(author, c.visibility, draft, text))
	if err != nil {
		return "", err
	}

	postID := header.Get("X-Restli-Id")
	if postID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(body, &created) == nil {
			postID = created.ID
		}
	}
	if postID == "" {
		return "", apierr.New(apierr.StagePublish, apierr.KindMalformedResponse, "response carries no post id")
	}

	c.log.Info().Str("post_id", postID).Msg("Post created successfully")
	return postID, nil
}

// truncate cuts text to at most limit runes, ending with an ellipsis
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}

var replacer = strings.NewReplacer(
	"━", "-", "─", "-", "═", "=",
	"│", "|", "║", "|",
	"•", "-", "◦", "-", "▪", "-",
	"►", ">", "◄", "<",
	"→", "->", "←", "<-", "⇒", "=>",
	"✓", "[x]", "✔", "[x]", "✗", "[ ]", "✘", "[ ]",
	"\u00A0", " ", "\u2002", " ", "\u2003", " ", "\u2009", " ",
	"\u200B", "", "\u200C", "", "\u200D", "", "\uFEFF", "",
)

// sanitizeForLinkedIn replaces decorative characters the API mangles and drops control characters
func sanitizeForLinkedIn(content string) string {
	content = replacer.Replace(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	content = b.String()

	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(content)
}
