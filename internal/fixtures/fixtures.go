// Package fixtures generates valid sample records for each record kind.
// `obay seed` uses it to fill a fresh store.
package fixtures

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// PartsOfSpeech lists the values a word's partsOfSpeech may hold.
var PartsOfSpeech = []string{
	"noun",
	"pronoun",
	"verb",
	"article",
	"adjective",
	"adverb",
	"conjunction",
	"preposition",
	"interjection",
}

var (
	adjectives = []string{
		"amber", "brisk", "crooked", "dusty", "electric", "feral", "golden",
		"hollow", "iron", "jagged", "lunar", "velvet", "quiet", "rusty",
	}
	nouns = []string{
		"anchor", "beacon", "canyon", "drifter", "ember", "falcon", "garden",
		"harbor", "island", "lantern", "meadow", "orchard", "pebble", "river",
	}
	firstNames = []string{
		"ada", "bruno", "clara", "dmitri", "elena", "farah", "gus", "hana",
		"ivan", "june", "kofi", "lena", "milo", "nora",
	}
)

// Generator produces records from a seeded source. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
}

// New returns a generator seeded with seed. Equal seeds yield equal
// sequences.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Valid returns a record of kind that satisfies the kind's schema. The
// record carries no id; the store assigns one.
func (g *Generator) Valid(kind types.Kind) (types.Record, error) {
	switch kind.Name {
	case types.KindNote.Name:
		return g.note(), nil
	case types.KindUser.Name:
		return g.user(), nil
	case types.KindWord.Name:
		return g.word(), nil
	case types.KindWordGroup.Name:
		return g.wordGroup(), nil
	default:
		return nil, fmt.Errorf("no fixture for kind %q", kind.Name)
	}
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.IntN(len(list))]
}

// bandName returns a two-word title such as "Rusty Lantern".
func (g *Generator) bandName() string {
	return titleCase(g.pick(adjectives)) + " " + titleCase(g.pick(nouns))
}

func (g *Generator) note() types.Record {
	rec := types.Record{
		"name":     g.bandName(),
		"body":     fmt.Sprintf("the %s %s by the %s", g.pick(adjectives), g.pick(nouns), g.pick(nouns)),
		"pinned":   g.rng.IntN(4) == 0,
		"priority": float64(g.rng.IntN(5)),
	}
	tags := make([]any, 0, 3)
	for range g.rng.IntN(4) {
		tags = append(tags, g.pick(adjectives))
	}
	rec["tags"] = tags
	return rec
}

func (g *Generator) user() types.Record {
	first := g.pick(firstNames)
	return types.Record{
		"name":  titleCase(first) + " " + titleCase(g.pick(nouns)),
		"email": fmt.Sprintf("%s%d@example.com", first, g.rng.IntN(1000)),
		"age":   float64(18 + g.rng.IntN(60)),
		"admin": g.rng.IntN(10) == 0,
	}
}

// word picks between one and all parts of speech without repeats.
func (g *Generator) word() types.Record {
	n := 1 + g.rng.IntN(len(PartsOfSpeech))
	perm := g.rng.Perm(len(PartsOfSpeech))
	parts := make([]any, 0, n)
	for _, i := range perm[:n] {
		parts = append(parts, PartsOfSpeech[i])
	}
	name := g.pick(nouns)
	return types.Record{
		"name":          name,
		"definition":    fmt.Sprintf("a %s kind of %s", g.pick(adjectives), name),
		"partsOfSpeech": parts,
		"syllables":     float64(1 + g.rng.IntN(4)),
	}
}

func (g *Generator) wordGroup() types.Record {
	words := make([]any, 0, 4)
	for range 1 + g.rng.IntN(4) {
		words = append(words, g.pick(nouns))
	}
	return types.Record{
		"name":        g.bandName(),
		"description": "words about " + g.pick(nouns),
		"words":       words,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
