package translate

import (
	"regexp"
	"strings"
)

// fenceInfo matches an optional info string: a known SQL tag on a one-line
// fence, or any tag ending the opening line.
const fenceInfo = `(?:(?i:sql|postgresql|postgres|mysql|sqlite|tsql|plsql)[ \t]+|[A-Za-z0-9_+-]*[ \t]*\r?\n)?`

var (
	reasoningBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>|<thinking>.*?</thinking>|<reasoning>.*?</reasoning>`)
	openReasoningRe  = regexp.MustCompile(`(?is)(?:<think>|<thinking>|<reasoning>).*$`)
	fencedBlockRe    = regexp.MustCompile("(?s)```" + fenceInfo + "(.*?)```|~~~" + fenceInfo + "(.*?)~~~")
	openFenceRe      = regexp.MustCompile("^(?:```|~~~)" + fenceInfo)
	answerLabelRe    = regexp.MustCompile(`(?i)^(?:here(?:'s| is) (?:the |your )?)?(?:sql(?: query| statement)?|query|answer|explanation|natural language(?: query| description)?|translation)\s*:\s*`)
)

// Normalize reduces raw backend text to the bare answer. It never changes
// letter case and the result never contains a code fence marker.
func Normalize(raw string) string {
	text := reasoningBlockRe.ReplaceAllString(raw, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if match := fencedBlockRe.FindStringSubmatch(text); match != nil {
		text = match[1] + match[2]
	}
	text = openFenceRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.ReplaceAll(text, "~~~", "")
	text = strings.TrimSpace(text)

	text = strings.TrimSpace(answerLabelRe.ReplaceAllString(text, ""))
	text = unwrap(text)
	return strings.TrimSpace(text)
}

var quotePairs = map[rune]rune{
	'"':      '"',
	'\'':     '\'',
	'`':      '`',
	'\u201c': '\u201d',
	'\u2018': '\u2019',
}

// unwrap strips one pair of matching outer quotes or backticks when the
// wrapped text contains no further occurrence of that delimiter.
func unwrap(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	closing, ok := quotePairs[runes[0]]
	if !ok || runes[n-1] != closing {
		return text
	}
	inner := string(runes[1 : n-1])
	if strings.ContainsRune(inner, runes[0]) || strings.ContainsRune(inner, closing) {
		return text
	}
	return strings.TrimSpace(inner)
}
