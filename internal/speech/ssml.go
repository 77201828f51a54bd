// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package speech

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markdownEmphasis = regexp.MustCompile(`\*{1,2}([^*]+?)\*{1,2}|_{1,2}([^_]+?)_{1,2}`)
	markdownCode     = regexp.MustCompile("`([^`]+)`")
	markdownFence    = regexp.MustCompile("(?s)```[^`]*```")
	markdownLink     = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	collapseSpace    = regexp.MustCompile(`\s+`)
)

// SSMLBuilder turns free text the caller asked to have spoken into
// well-formed SSML for the Azure TTS voice, stripping markdown the
// upstream script text may still carry and escaping XML metacharacters.
type SSMLBuilder struct {
	language  string
	voiceName string
}

// NewSSMLBuilder constructs a builder for one call's negotiated
// language/voice. language defaults to en-US when unset.
func NewSSMLBuilder(language, voiceName string) *SSMLBuilder {
	if language == "" {
		language = "en-US"
	}
	return &SSMLBuilder{language: language, voiceName: voiceName}
}

// Wrap strips markdown from text, escapes it for XML, and wraps it in
// a <speak><voice> document ready for SpeakSsmlAsync.
func (b *SSMLBuilder) Wrap(text string) string {
	text = stripMarkdown(text)
	text = escapeXML(text)
	text = collapseSpace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		b.language, b.voiceName, text,
	)
}

func stripMarkdown(input string) string {
	out := markdownHeading.ReplaceAllString(input, "")
	out = markdownEmphasis.ReplaceAllString(out, "$1$2")
	out = markdownFence.ReplaceAllString(out, "")
	out = markdownCode.ReplaceAllString(out, "$1")
	out = markdownLink.ReplaceAllString(out, "$1")
	return out
}

func escapeXML(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(text)
}
