package utils

import "unicode/utf8"

// Token estimates are heuristics: about four ASCII characters per token and
// about one and a half runes per token for Hangul and other wide scripts.

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	var ascii, wide int
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			wide++
		}
	}
	tokens := ascii/4 + wide*2/3
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text so its estimate stays within limit. When a
// cut is needed it backs up to the last line break in the kept tail, so
// tables and records are not split mid-line.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if CountTokens(text) <= limit {
		return text
	}
	// Budget in quarter tokens: ASCII costs 1, a wide rune costs 3 (rounded up from 8/3).
	budget := limit * 4
	cut, spent, lastNL := 0, 0, -1
	for i, r := range text {
		cost := 1
		if r >= utf8.RuneSelf {
			cost = 3
		}
		if spent+cost > budget {
			break
		}
		spent += cost
		cut = i + utf8.RuneLen(r)
		if r == '\n' {
			lastNL = i
		}
	}
	if lastNL > cut*4/5 {
		cut = lastNL
	}
	return text[:cut]
}

// TokenBreakdown returns a breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
