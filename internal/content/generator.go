// Package content turns a topic into a shareable draft using the configured text generator.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linkedin-autoposter/internal/ai"
	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/internal/models"
	"github.com/linkedin-autoposter/pkg/logger"
)

// ImageFinder looks up an image URL for a topic
type ImageFinder interface {
	FindImageURL(ctx context.Context, query string) (string, error)
}

// Generator builds post drafts and comment replies
type Generator struct {
	completer ai.Completer
	cfg       config.ContentConfig
	images    ImageFinder
	log       *logger.Logger
}

// NewGenerator creates a generator. images may be nil.
func NewGenerator(completer ai.Completer, cfg config.ContentConfig, images ImageFinder, log *logger.Logger) *Generator {
	return &Generator{
		completer: completer,
		cfg:       cfg,
		images:    images,
		log:       log.WithComponent("content"),
	}
}

// Generate produces a draft for topic. A response that is not JSON is used as the post text.
func (g *Generator) Generate(ctx context.Context, topic string) (*models.Draft, error) {
	log := g.log.WithTopic(topic)
	log.Info().Msg("Generating post")

	response, err := g.completer.Complete(ctx, g.systemPrompt(), g.userPrompt(topic))
	if err != nil {
		return nil, err
	}

	draft := parseDraft(response)
	if strings.TrimSpace(draft.Text) == "" {
		return nil, apierr.New(apierr.StageGenerate, apierr.KindMalformedResponse, "generated post text is empty")
	}
	if draft.Title == "" {
		draft.Title = topic
	}

	if g.images != nil && draft.ImageURL == "" {
		imageURL, err := g.images.FindImageURL(ctx, topic)
		if err != nil {
			log.Warn().Err(err).Msg("No image found, posting without one")
		} else {
			draft.ImageURL = imageURL
		}
	}

	log.Info().
		Int("length", len(draft.Text)).
		Bool("has_media", draft.HasMedia()).
		Msg("Post generated")
	return draft, nil
}

// GenerateReply writes a reply to a comment left on postText
func (g *Generator) GenerateReply(ctx context.Context, postText, commentText string) (string, error) {
	system := fmt.Sprintf(ai.ReplySystemPrompt, g.cfg.BrandVoice)
	user := fmt.Sprintf(ai.ReplyUserPrompt, postText, commentText)

	response, err := g.completer.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}

	reply := strings.Trim(strings.TrimSpace(response), `"`)
	if reply == "" {
		return "", apierr.New(apierr.StageGenerate, apierr.KindMalformedResponse, "generated reply is empty")
	}
	return reply, nil
}

func (g *Generator) systemPrompt() string {
	return fmt.Sprintf(ai.PostSystemPrompt, g.cfg.BrandVoice)
}

func (g *Generator) userPrompt(topic string) string {
	length, ok := ai.LengthGuide[g.cfg.Length]
	if !ok {
		length = ai.LengthGuide["medium"]
	}
	return fmt.Sprintf(ai.PostUserPrompt, topic, g.cfg.Tone, length, g.cfg.Hashtags)
}

// parseDraft reads the JSON draft out of a response, falling back to the raw text
func parseDraft(response string) *models.Draft {
	if raw, ok := ai.ExtractJSON(response); ok {
		var draft models.Draft
		if err := json.Unmarshal([]byte(raw), &draft); err == nil && strings.TrimSpace(draft.Text) != "" {
			draft.Text = strings.TrimSpace(draft.Text)
			return &draft
		}
	}
	return &models.Draft{Text: strings.TrimSpace(response)}
}
