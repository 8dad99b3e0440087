package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
)

const (
	DefaultTemplate   = "default"
	DefaultDateLayout = "January 2, 2006"

	titleRole = "You are an expert in marketing and engaging headlines."
	introRole = "You are a friendly, persuasive writer who connects with readers."

	maxTitleTopics = 3
	quoteChars     = "\"'“”‘’"
)

var footerLines = []string{
	"Thanks for reading your personalized digest!",
	"You receive this summary based on your interests.",
}

// Options configures document rendering.
type Options struct {
	Template    string
	DateLayout  string
	Location    *time.Location
	CallTimeout time.Duration
	// Now is the clock; tests pin it to make renders repeatable.
	Now func() time.Time
}

// Digest is the context handed to templates and to the text builder.
type Digest struct {
	RecipientName string
	Title         string
	Introduction  string
	Date          string
	Topics        []domain.TopicBundle
	Footer        []string
}

// Renderer turns condensed topics into a personalized document.
type Renderer struct {
	generator ports.TextGenerator
	templates TemplateSet
	opts      Options
	logger    *slog.Logger
}

var _ ports.Renderer = (*Renderer)(nil)

// New builds a renderer. A nil template set uses the embedded templates.
func New(generator ports.TextGenerator, templates TemplateSet, opts Options, logger *slog.Logger) *Renderer {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}
	if opts.DateLayout == "" {
		opts.DateLayout = DefaultDateLayout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{
		generator: generator,
		templates: templates,
		opts:      opts,
		logger:    logging.OrDiscard(logger),
	}
}

// Render always returns a document with both bodies set.
func (r *Renderer) Render(ctx context.Context, recipient domain.Recipient, bundles []domain.TopicBundle) domain.RenderedDocument {
	topics := domain.TopicNames(bundles)
	now := r.opts.Now().In(r.opts.Location)

	digest := Digest{
		RecipientName: recipient.Name,
		Title:         r.title(ctx, recipient.Name, topics),
		Introduction:  r.introduction(ctx, recipient.Name, topics),
		Date:          now.Format(r.opts.DateLayout),
		Topics:        bundles,
		Footer:        footerLines,
	}

	html, err := r.executeTemplate(digest)
	fallback := err != nil
	if fallback {
		r.logger.Warn("template rendering failed, using fallback body", "template", r.opts.Template, "error", err)
		html = FallbackHTML(digest)
	}

	return domain.RenderedDocument{
		HTML:      html,
		Text:      PlainText(digest),
		Title:     digest.Title,
		Subject:   digest.Title + " - " + digest.Date,
		CreatedAt: now,
		Fallback:  fallback,
	}
}

func (r *Renderer) executeTemplate(digest Digest) (html string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("template panic: %v", p)
		}
	}()

	var buf bytes.Buffer
	if err := r.templates.Execute(&buf, r.opts.Template, digest); err != nil {
		return "", err
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", fmt.Errorf("template %q produced an empty body", r.opts.Template)
	}
	return buf.String(), nil
}

func (r *Renderer) title(ctx context.Context, name string, topics []string) string {
	topicsText := joinTopics(topics, " and more")
	fallback := "Your News Digest: " + topicsText

	text, err := r.complete(ctx, ports.Prompt{
		System: titleRole,
		User: fmt.Sprintf("Write an engaging, personal title for a newsletter addressed to %s covering news about: %s.\n"+
			"The title must be concise (at most 8 words) and catch the reader's attention. "+
			"Do not use quotes or excessive exclamation marks.", name, topicsText),
		Temperature: 0.7,
		MaxTokens:   30,
	})
	if err == nil {
		text = strings.TrimSpace(strings.Trim(text, quoteChars))
	}
	if err != nil || text == "" {
		if err != nil {
			r.logger.Warn("title generation failed", "error", err)
		}
		return fallback
	}
	return text
}

func (r *Renderer) introduction(ctx context.Context, name string, topics []string) string {
	topicsText := joinTopics(topics, " and other topics")
	fallback := fmt.Sprintf("Hello %s, here is your news digest about %s for today.", name, topicsText)

	text, err := r.complete(ctx, ports.Prompt{
		System: introRole,
		User: fmt.Sprintf("Write a warm, personal opening paragraph for a newsletter addressed to %s summarizing news about: %s.\n"+
			"Keep it direct and no longer than 3 sentences. "+
			"Mention that these are the most relevant stories selected especially for their interests.", name, topicsText),
		Temperature: 0.7,
		MaxTokens:   150,
	})
	if err != nil {
		r.logger.Warn("introduction generation failed", "error", err)
		return fallback
	}
	return text
}

func (r *Renderer) complete(ctx context.Context, prompt ports.Prompt) (string, error) {
	if r.generator == nil {
		return "", fmt.Errorf("text generation is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	text, err := r.generator.Complete(callCtx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return text, nil
}

// joinTopics lists up to three topic names, adding suffix when more were dropped.
func joinTopics(topics []string, suffix string) string {
	if len(topics) <= maxTitleTopics {
		return strings.Join(topics, ", ")
	}
	return strings.Join(topics[:maxTitleTopics], ", ") + suffix
}
