package usecase

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// keywordTokens splits every phrase on whitespace and keeps words of at least minLen
// characters, first occurrence order, without duplicates.
func keywordTokens(phrases []string, minLen int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(phrases)*4)
	for _, phrase := range phrases {
		for _, word := range strings.Fields(phrase) {
			if utf8.RuneCountInString(word) < minLen {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			out = append(out, word)
		}
	}
	return out
}

func lowerWordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// wordOverlap is |query ∩ candidate| / |query|.
func wordOverlap(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
