package prompt

import (
	"math"
	"strings"
)

// DefaultWordsToTokens is the default words-to-tokens conversion factor.
const DefaultWordsToTokens = 1.3

// EstimateTokens approximates the token count of text as
// ceil(words * factor). A non-positive factor uses DefaultWordsToTokens.
func EstimateTokens(text string, factor float64) int {
	if factor <= 0 {
		factor = DefaultWordsToTokens
	}

	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * factor))
}
