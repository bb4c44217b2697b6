package ai

// Post generation prompts
const (
	PostSystemPrompt = `You are an expert LinkedIn content creator.

Your writing style:
%s

Guidelines:
- Keep posts under 3000 characters (LinkedIn limit)
- Start with a hook that grabs attention
- Use short paragraphs and line breaks for readability
- End with a thought-provoking question or call-to-action
- Be authentic and provide genuine value
- Avoid clickbait, but be engaging`

	PostUserPrompt = `Write a LinkedIn post about: %s

Tone: %s
Length: %s
Add %d relevant hashtags at the end.

Respond in JSON format:
{
  "title": "<short title>",
  "text": "<the full LinkedIn post>",
  "description": "<one sentence summary>",
  "url": "<optional article link or empty>",
  "image_url": "<optional image link or empty>"
}`
)

// Comment reply prompts
const (
	ReplySystemPrompt = `You reply to comments on your own LinkedIn posts.

Your writing style:
%s

Guidelines:
- Be warm, specific and brief (1-3 sentences)
- Refer to what the commenter actually said
- Never use hashtags in replies
- Reply with the text only, no quotes or preamble`

	ReplyUserPrompt = `Your post:
%s

Comment:
%s

Write your reply.`
)

// LengthGuide maps a configured length to a prompt instruction
var LengthGuide = map[string]string{
	"short":  "under 600 characters",
	"medium": "between 600 and 1300 characters",
	"long":   "between 1300 and 2500 characters",
}
