package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/pkg/logger"
)

type fakeCompleter struct {
	response string
	err      error

	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.response, f.err
}

type fakeImages struct {
	url string
	err error
}

func (f fakeImages) FindImageURL(context.Context, string) (string, error) {
	return f.url, f.err
}

var testContent = config.ContentConfig{
	Tone:       "casual",
	Length:     "short",
	BrandVoice: "Friendly engineer",
	Hashtags:   2,
}

func TestGenerateParsesJSON(t *testing.T) {
	fc := &fakeCompleter{response: "Here you go:\n```json\n" +
		`{"title":"Go 1.24","text":"  Generics got better.  ","description":"news","url":"https://go.dev","image_url":""}` +
		"\n```"}
	g := NewGenerator(fc, testContent, nil, logger.Nop())

	draft, err := g.Generate(context.Background(), "Go")
	require.NoError(t, err)
	assert.Equal(t, "Go 1.24", draft.Title)
	assert.Equal(t, "Generics got better.", draft.Text)
	assert.Equal(t, "https://go.dev", draft.URL)

	assert.Contains(t, fc.system, "Friendly engineer")
	assert.Contains(t, fc.user, "Write a LinkedIn post about: Go")
	assert.Contains(t, fc.user, "Tone: casual")
	assert.Contains(t, fc.user, "under 600 characters")
	assert.Contains(t, fc.user, "Add 2 relevant hashtags")
}

func TestGenerateFallsBackToRawText(t *testing.T) {
	g := NewGenerator(&fakeCompleter{response: "Plain post about teams."}, testContent, nil, logger.Nop())

	draft, err := g.Generate(context.Background(), "Leadership")
	require.NoError(t, err)
	assert.Equal(t, "Plain post about teams.", draft.Text)
	assert.Equal(t, "Leadership", draft.Title)
	assert.False(t, draft.HasMedia())
}

func TestGenerateEmptyTextIsMalformed(t *testing.T) {
	g := NewGenerator(&fakeCompleter{response: "   "}, testContent, nil, logger.Nop())

	_, err := g.Generate(context.Background(), "AI")
	assert.Equal(t, apierr.KindMalformedResponse, apierr.KindOf(err))
	assert.True(t, apierr.IsGeneration(err))
}

func TestGeneratePropagatesCompleterError(t *testing.T) {
	cause := apierr.New(apierr.StageGenerate, apierr.KindAuth, "bad key")
	g := NewGenerator(&fakeCompleter{err: cause}, testContent, nil, logger.Nop())

	_, err := g.Generate(context.Background(), "AI")
	assert.ErrorIs(t, err, cause)
}

func TestGenerateAttachesImage(t *testing.T) {
	g := NewGenerator(&fakeCompleter{response: "Post"}, testContent, fakeImages{url: "https://img/1.jpg"}, logger.Nop())
	draft, err := g.Generate(context.Background(), "AI")
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.jpg", draft.ImageURL)

	g = NewGenerator(&fakeCompleter{response: "Post"}, testContent, fakeImages{err: errors.New("quota")}, logger.Nop())
	draft, err = g.Generate(context.Background(), "AI")
	require.NoError(t, err)
	assert.Empty(t, draft.ImageURL)
}

func TestGenerateReply(t *testing.T) {
	fc := &fakeCompleter{response: ` "Thanks Sam, glad it helped!" `}
	g := NewGenerator(fc, testContent, nil, logger.Nop())

	reply, err := g.GenerateReply(context.Background(), "my post", "great read")
	require.NoError(t, err)
	assert.Equal(t, "Thanks Sam, glad it helped!", reply)
	assert.Contains(t, fc.user, "my post")
	assert.Contains(t, fc.user, "great read")

	fc.response = ""
	_, err = g.GenerateReply(context.Background(), "my post", "great read")
	assert.Equal(t, apierr.KindMalformedResponse, apierr.KindOf(err))
}
