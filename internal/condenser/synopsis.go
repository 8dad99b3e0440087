package condenser

import "strings"

const (
	summaryMarker   = "summary:"
	relevanceMarker = "relevance:"
	trimCutset      = " \t\r\n*"
)

// ParseSynopsis interprets a per-item model response.
//
// With withRelevance unset the whole trimmed response is the synopsis. Otherwise the response is split
// on the first "Relevance:" marker (ASCII case-insensitive): the text before it, minus an optional
// "Summary:" prefix, is the synopsis and the text after it is the relevance note. When the relevance
// marker comes first, a "Summary:" marker inside the trailing text separates the two the other way
// round. Without a relevance marker the whole response is the synopsis and relevance is empty.
func ParseSynopsis(response string, withRelevance bool) (synopsis, relevance string) {
	whole := strings.Trim(response, trimCutset)
	if !withRelevance {
		return whole, ""
	}

	rel := indexFold(response, relevanceMarker)
	if rel < 0 {
		return whole, ""
	}

	before := response[:rel]
	after := response[rel+len(relevanceMarker):]

	if strings.Trim(before, trimCutset) == "" {
		// Relevance first: "Relevance: ... Summary: ...".
		if sum := indexFold(after, summaryMarker); sum >= 0 {
			return strings.Trim(after[sum+len(summaryMarker):], trimCutset),
				strings.Trim(after[:sum], trimCutset)
		}
		return "", strings.Trim(after, trimCutset)
	}

	if sum := indexFold(before, summaryMarker); sum >= 0 {
		before = before[sum+len(summaryMarker):]
	}
	return strings.Trim(before, trimCutset), strings.Trim(after, trimCutset)
}

// indexFold finds an ASCII marker in s ignoring ASCII case. Byte offsets stay valid for s because
// non-ASCII bytes never match.
func indexFold(s, marker string) int {
	n := len(marker)
	for i := 0; i+n <= len(s); i++ {
		match := true
		for j := 0; j < n; j++ {
			if lowerASCII(s[i+j]) != marker[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
