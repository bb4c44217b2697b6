// Package unsplash finds stock images to attach to generated shares.
package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

const defaultBaseURL = "https://api.unsplash.com"

// Photo represents an Unsplash photo
type Photo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AltDesc     string `json:"alt_description"`
	URLs        URLs   `json:"urls"`
	User        User   `json:"user"`
	Links       Links  `json:"links"`
}

// URLs contains different size URLs for the photo
type URLs struct {
	Full    string `json:"full"`
	Regular string `json:"regular"` // 1080px width
	Small   string `json:"small"`
}

// User represents the photographer
type User struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Links contains API links for the photo
type Links struct {
	DownloadLocation string `json:"download_location"`
}

type searchResult struct {
	Total   int     `json:"total"`
	Results []Photo `json:"results"`
}

// Client is the Unsplash API client
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	rng         *rand.Rand
	log         *logger.Logger
}

// NewClient creates a new Unsplash client. rng may be nil.
func NewClient(cfg config.MediaConfig, limiter *ratelimit.MultiLimiter, rng *rand.Rand, log *logger.Logger) *Client {
	base := strings.TrimRight(cfg.UnsplashURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Client{
		apiKey:      cfg.UnsplashAPIKey,
		baseURL:     base,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: limiter,
		rng:         rng,
		log:         log.WithComponent("unsplash"),
	}
}

// SearchPhotos searches for landscape photos matching the query
func (c *Client) SearchPhotos(ctx context.Context, query string, perPage int) ([]Photo, error) {
	if perPage <= 0 {
		perPage = 5
	}
	if perPage > 30 {
		perPage = 30
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterUnsplash); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("orientation", "landscape")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/photos?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.apiKey)
	req.Header.Set("Accept-Version", "v1")

	c.log.Debug().Str("query", query).Msg("Searching Unsplash photos")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result searchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.log.Debug().
		Int("total", result.Total).
		Int("returned", len(result.Results)).
		Msg("Search completed")

	return result.Results, nil
}

// RandomPhoto returns a random photo from the top results so shares do not repeat images
func (c *Client) RandomPhoto(ctx context.Context, query string) (*Photo, error) {
	photos, err := c.SearchPhotos(ctx, query, 10)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("no photos found for query: %s", query)
	}
	photo := &photos[c.rng.IntN(len(photos))]
	c.trackDownload(ctx, photo)
	return photo, nil
}

// FindImageURL returns the display URL of a photo matching the query
func (c *Client) FindImageURL(ctx context.Context, query string) (string, error) {
	photo, err := c.RandomPhoto(ctx, query)
	if err != nil {
		return "", err
	}
	imageURL := photo.URLs.Regular
	if imageURL == "" {
		imageURL = photo.URLs.Full
	}
	if imageURL == "" {
		return "", fmt.Errorf("photo %s has no usable URL", photo.ID)
	}

	c.log.Info().
		Str("photo_id", photo.ID).
		Str("photographer", photo.User.Name).
		Msg("Selected image")
	return imageURL, nil
}

// Attribution returns the credit line Unsplash requires for a photo
func Attribution(photo *Photo) string {
	return fmt.Sprintf("Photo by %s on Unsplash", photo.User.Name)
}

// trackDownload pings the download endpoint, which Unsplash requires when a photo is used
func (c *Client) trackDownload(ctx context.Context, photo *Photo) {
	if photo.Links.DownloadLocation == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photo.Links.DownloadLocation, nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Client-ID "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("photo_id", photo.ID).Msg("Download tracking failed")
		return
	}
	resp.Body.Close()
}
