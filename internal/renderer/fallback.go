package renderer

import (
	"html/template"
	"strings"
)

// FallbackHTML assembles a minimal structured body without templates. Every value is escaped.
func FallbackHTML(d Digest) string {
	esc := template.HTMLEscapeString

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n")
	b.WriteString("<title>" + esc(d.Title) + "</title>\n</head>\n")
	b.WriteString("<body style=\"font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px;\">\n")
	b.WriteString("<h1>" + esc(d.Title) + "</h1>\n")
	b.WriteString("<p>" + esc(d.Date) + "</p>\n")
	b.WriteString("<p>Hello " + esc(d.RecipientName) + ",</p>\n")
	b.WriteString("<p>" + esc(d.Introduction) + "</p>\n")

	for _, topic := range d.Topics {
		b.WriteString("<h2>" + esc(topic.Topic) + "</h2>\n")
		b.WriteString("<p><em>" + esc(topic.Synopsis) + "</em></p>\n")

		for _, item := range topic.Items {
			b.WriteString("<div style=\"margin-bottom: 20px; padding-bottom: 10px; border-bottom: 1px solid #eee;\">\n")
			b.WriteString("<h3>" + esc(item.Title) + "</h3>\n")
			b.WriteString("<p>" + esc(item.Synopsis) + "</p>\n")
			if item.Relevance != "" {
				b.WriteString("<p><strong>Relevance:</strong> " + esc(item.Relevance) + "</p>\n")
			}
			b.WriteString("<p>Source: " + esc(item.Source))
			if item.URL != "" {
				b.WriteString(" - <a href=\"" + esc(item.URL) + "\" target=\"_blank\">Read more</a>")
			}
			b.WriteString("</p>\n</div>\n")
		}
	}

	b.WriteString("<p style=\"margin-top: 30px; padding-top: 10px; border-top: 1px solid #eee;\">")
	for i, line := range d.Footer {
		if i > 0 {
			b.WriteString("<br>\n")
		}
		b.WriteString(esc(line))
	}
	b.WriteString("</p>\n</body>\n</html>\n")
	return b.String()
}
