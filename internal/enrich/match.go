package enrich

import "strings"

// Candidate is one search hit to be scored against the wanted artist and title
type Candidate struct {
	Title   string
	Artists []string
	// Score is the service's own relevance, 0-100
	Score int
}

// MatchScore rates how well a candidate matches artist and title
func MatchScore(c Candidate, artist, title string) int {
	score := 0
	got := strings.ToLower(c.Title)
	want := strings.ToLower(title)

	switch {
	case got == want:
		score += 100
	case strings.Contains(got, want):
		score += 60
	case strings.Contains(want, got):
		score += 50
	default:
		score += 10 * wordOverlap(want, got)
	}

	wantArtist := strings.ToLower(artist)
	for _, name := range c.Artists {
		name = strings.ToLower(name)
		switch {
		case name == "":
		case name == wantArtist:
			score += 50
		case strings.Contains(name, wantArtist) || strings.Contains(wantArtist, name):
			score += 30
		}
	}

	return score + c.Score/10
}

// BestMatch returns the index of the highest scoring candidate, or -1 for none.
// Ties keep the earlier candidate.
func BestMatch(candidates []Candidate, artist, title string) (int, int) {
	best, bestScore := -1, -1
	for i, c := range candidates {
		if s := MatchScore(c, artist, title); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

func wordOverlap(a, b string) int {
	words := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		words[w] = true
	}
	n := 0
	for _, w := range strings.Fields(b) {
		if words[w] {
			n++
			delete(words, w)
		}
	}
	return n
}
