package templates

import (
	"regexp"
	"sort"
	"strings"
)

var queryTokenPattern = regexp.MustCompile(`[a-z0-9_-]+`)

// keywordBonuses are hand-tuned boosts for the most common automation
// intents. A bonus applies when the literal substring appears in both the
// query and the item haystack, stacking with per-token scoring.
var keywordBonuses = []struct {
	keyword string
	bonus   int
}{
	{"rss", 3},
	{"telegram", 3},
	{"sheet", 3},
	{"webhook", 3},
	{"http", 2},
}

// Score rates how well an indexed template matches a free-text query.
// Purely lexical: +2 for every query token found as a substring of the
// item's intents, tags, and name, plus fixed keyword bonuses.
func Score(query string, item Item) int {
	q := strings.ToLower(query)
	haystack := itemHaystack(item)

	score := 0
	for _, token := range queryTokenPattern.FindAllString(q, -1) {
		if strings.Contains(haystack, token) {
			score += 2
		}
	}
	for _, kb := range keywordBonuses {
		if strings.Contains(q, kb.keyword) && strings.Contains(haystack, kb.keyword) {
			score += kb.bonus
		}
	}
	return score
}

// Rank sorts items by descending score. The sort is stable: equal scores
// preserve original index order.
func Rank(query string, items []Item) []Item {
	scored := scoreAll(query, items)
	ranked := make([]Item, len(scored))
	for i, s := range scored {
		ranked[i] = s.item
	}
	return ranked
}

type scoredItem struct {
	item  Item
	score int
}

func scoreAll(query string, items []Item) []scoredItem {
	scored := make([]scoredItem, len(items))
	for i, item := range items {
		scored[i] = scoredItem{item: item, score: Score(query, item)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored
}

func itemHaystack(item Item) string {
	return strings.ToLower(strings.Join([]string{
		strings.Join(item.Intents, " "),
		strings.Join(item.Tags, " "),
		item.Name,
	}, " "))
}
