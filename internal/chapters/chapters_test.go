package chapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/mangapipe/internal/providers"
)

func sample() []Chapter {
	return Wrap([]providers.Chapter{
		{Label: "1", NumMain: 1},
		{Label: "2", NumMain: 2},
		{Label: "2.5", NumMain: 2, SuffixType: ".", SuffixNum: 5},
		{Label: "3", NumMain: 3},
		{Label: "10", NumMain: 10},
	})
}

func labels(chs []Chapter) []string {
	var out []string
	for _, c := range chs {
		out = append(out, c.Label)
	}
	return out
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "chapter_12_5_the_end", Sanitize("Chapter 12.5 — (The End)"))
	assert.Equal(t, "a_b", Sanitize("a//b!!"))
	assert.Equal(t, "", Sanitize("***"))
}

func TestOutputNames(t *testing.T) {
	c := Chapter{providers.Chapter{Label: "12.5", Title: "Homecoming"}}
	assert.Equal(t, "12_5_homecoming_tmp", c.FolderName())
	assert.Equal(t, "12_5_homecoming.cbz", c.OutputCBZ())

	untitled := Chapter{providers.Chapter{Label: "3", Title: "3"}}
	assert.Equal(t, "3.cbz", untitled.OutputCBZ())
}

func TestFilter(t *testing.T) {
	all := sample()

	for name, tc := range map[string]struct {
		sel  Selection
		want []string
	}{
		"everything":       {Selection{}, []string{"1", "2", "2.5", "3", "10"}},
		"by label":         {Selection{Chapter: "2.5"}, []string{"2.5"}},
		"index fallback":   {Selection{Chapter: "5"}, []string{"10"}},
		"nothing":          {Selection{Chapter: "42"}, nil},
		"range by number":  {Selection{Range: "2-3"}, []string{"2", "2.5", "3"}},
		"fractional range": {Selection{Range: "2.5 - 10"}, []string{"2.5", "3", "10"}},
		"list":             {Selection{List: "10, 2.5,,1"}, []string{"10", "2.5", "1"}},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Filter(all, tc.sel)
			require.NoError(t, err)
			assert.Equal(t, tc.want, labels(got))
		})
	}
}

func TestFilterBadRange(t *testing.T) {
	for _, rng := range []string{"5", "a-b", "9-3"} {
		_, err := Filter(sample(), Selection{Range: rng})
		assert.Error(t, err, rng)
	}
}
