package mind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategyReply(t *testing.T) {
	raw := `{"thought":"she asked","actions":[{"type":"kfc_reply","content":"hi"},{"type":"action:kfc_reply","content":"how are you?"}],"expected_user_reaction":"tells me","max_wait_seconds":45,"mood":"warm"}`
	res, ok := ParseStrategy(raw)
	require.True(t, ok)
	assert.Equal(t, Reply{
		Content:          "hi\nhow are you?",
		Thought:          "she asked",
		ExpectedReaction: "tells me",
		MaxWait:          45 * time.Second,
		Mood:             "warm",
		Actions:          []string{"kfc_reply", "kfc_reply"},
	}, res)
}

func TestParseStrategyLocations(t *testing.T) {
	cases := map[string]string{
		"fenced":   "Sure.\n```json\n{\"actions\":[{\"type\":\"do_nothing\"}],\"max_wait_seconds\":\"30\"}\n```",
		"embedded": `I will wait. {"thought": "brace } in string", "actions": [{"type": "do_nothing"}], "max_wait_seconds": 30} ok`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res, ok := ParseStrategy(raw)
			require.True(t, ok)
			dn, isDN := res.(DoNothing)
			require.True(t, isDN)
			assert.Equal(t, 30*time.Second, dn.MaxWait)
		})
	}
}

func TestParseStrategyActionMetadataOverrides(t *testing.T) {
	raw := `{"thought":"outer","actions":[{"type":"kfc_reply","content":"x","thought":"inner","expected_reaction":"laugh","max_wait_seconds":12}]}`
	res, ok := ParseStrategy(raw)
	require.True(t, ok)
	r := res.(Reply)
	assert.Equal(t, "inner", r.Thought)
	assert.Equal(t, "laugh", r.ExpectedReaction)
	assert.Equal(t, 12*time.Second, r.MaxWait)
}

func TestParseStrategyStopForcesNoWait(t *testing.T) {
	res, ok := ParseStrategy(`{"actions":[{"type":"kfc_reply","content":"bye"},{"type":"kfc_stop"}],"max_wait_seconds":300}`)
	require.True(t, ok)
	r := res.(Reply)
	assert.True(t, r.Stop)
	assert.Zero(t, r.MaxWait)
}

func TestParseStrategyEmptyReplyIsDoNothing(t *testing.T) {
	res, ok := ParseStrategy(`{"thought":"hmm","actions":[{"type":"kfc_reply","content":"  "}]}`)
	require.True(t, ok)
	assert.IsType(t, DoNothing{}, res)
}

func TestParseStrategyFreeText(t *testing.T) {
	for _, raw := range []string{
		"The picture shows a cat on a sofa.",
		"{}",
		`{"unrelated": true}`,
		"{ not json",
		"",
	} {
		_, ok := ParseStrategy(raw)
		assert.False(t, ok, raw)
	}
}
