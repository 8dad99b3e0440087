package renderer

import (
	"fmt"
	"strings"
)

// PlainText builds the plain-text body from the same context as the structured one.
func PlainText(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", d.Title, d.Date)
	fmt.Fprintf(&b, "Hello %s,\n\n", d.RecipientName)
	fmt.Fprintf(&b, "%s\n\n", d.Introduction)

	for _, topic := range d.Topics {
		fmt.Fprintf(&b, "%s\n%s\n\n", strings.ToUpper(topic.Topic), topic.Synopsis)

		for i, item := range topic.Items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
			fmt.Fprintf(&b, "   %s\n", item.Synopsis)
			if item.Relevance != "" {
				fmt.Fprintf(&b, "   Relevance: %s\n", item.Relevance)
			}
			fmt.Fprintf(&b, "   Source: %s - %s\n\n", item.Source, item.URL)
		}
		b.WriteString("\n")
	}

	for _, line := range d.Footer {
		b.WriteString(line + "\n")
	}
	return b.String()
}
