// Package video resolves raw video references and human timestamps into
// time-anchored embed URLs.
package video

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/neotutor/internal/models"
)

// EmbedOrigin is the canonical origin for playable embeds.
const EmbedOrigin = "https://www.youtube.com/embed/"

// idPattern matches the watch (?v=), embed (/embed/) and short-link (.be/) forms.
var idPattern = regexp.MustCompile(`(?:\?v=|/embed/|\.be/)([a-zA-Z0-9_-]{11})`)

// ExtractID returns the 11-character video id found in rawURL.
func ExtractID(rawURL string) (string, bool) {
	m := idPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ToSeconds converts "MM:SS" or "HH:MM:SS" to seconds. Any other shape, or
// any component that is not a number, yields 0.
func ToSeconds(ts string) int {
	parts := strings.Split(ts, ":")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0
		}
		nums[i] = n
	}

	switch len(nums) {
	case 3:
		return nums[0]*3600 + nums[1]*60 + nums[2]
	case 2:
		return nums[0]*60 + nums[1]
	default:
		return 0
	}
}

// EmbedURL builds an autoplaying embed URL for id starting at start seconds.
// The end parameter is only added when end is nonzero, so an end of exactly
// 0 seconds reads the same as no end boundary.
func EmbedURL(id string, start, end int) string {
	u := fmt.Sprintf("%s%s?start=%d&autoplay=1&rel=0", EmbedOrigin, id, start)
	if end != 0 {
		u += fmt.Sprintf("&end=%d", end)
	}
	return u
}

// Cite builds a citation for the segment [start, end] of rawURL. It reports
// false when no video id can be extracted.
func Cite(rawURL, title, start, end string) (models.VideoCitation, bool) {
	id, ok := ExtractID(rawURL)
	if !ok {
		return models.VideoCitation{}, false
	}
	return models.VideoCitation{
		VideoURL:  EmbedURL(id, ToSeconds(start), ToSeconds(end)),
		Title:     title,
		StartTime: start,
		EndTime:   end,
	}, true
}
