package thread

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordBasic(t *testing.T) {
	line := []byte(`{"thread":[{"user_id":"aa","text":"hi","likes":3},{"user_id":"bb","text":"yo"}],"cluster":7}` + "\n")

	rec, err := ParseRecord(line)
	require.NoError(t, err)
	require.Len(t, rec.Thread, 2)
	assert.Equal(t, "aa", rec.Thread[0]["user_id"])
	assert.Equal(t, json.Number("3"), rec.Thread[0]["likes"])
	assert.Equal(t, []string{"aa", "bb"}, rec.Thread.UserIDs())
}

func TestParseRecordEmptyThread(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"thread":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, rec.Thread)
	assert.Empty(t, rec.Thread)
}

func TestParseRecordMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty line", "\n"},
		{"not json", "hello\n"},
		{"array record", `[{"thread":[]}]`},
		{"null record", `null`},
		{"missing thread", `{"messages":[]}`},
		{"wrong case key", `{"Thread":[]}`},
		{"null thread", `{"thread":null}`},
		{"thread object", `{"thread":{"user_id":"a"}}`},
		{"message not object", `{"thread":["a"]}`},
		{"null message", `{"thread":[null]}`},
		{"invalid utf8", "{\"thread\":[{\"user_id\":\"a\",\"text\":\"\xff\"}]}"},
		{"lone high surrogate", `{"thread":[{"user_id":"a","text":"\ud83d"}]}`},
		{"lone low surrogate", `{"thread":[{"user_id":"a","text":"\ude00x"}]}`},
		{"lowercase nan", `{"thread":[{"user_id":"a","score":nan}]}`},
		{"lowercase infinity", `{"thread":[{"user_id":"a","score":infinity}]}`},
		{"signed nan", `{"thread":[{"user_id":"a","score":-NaN}]}`},
		{"nan after digit", `{"thread":[{"user_id":"a","score":1NaN}]}`},
		{"nan with exponent", `{"thread":[{"user_id":"a","score":NaNe5}]}`},
		{"nan as key", `{"thread":[{NaN:1}]}`},
		{"trailing data", `{"thread":[]} {"thread":[]}`},
		{"unterminated", `{"thread":[{"user_id":"a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tt.line))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord), "got %v", err)
		})
	}
}

func TestParseRecordNonFiniteLiterals(t *testing.T) {
	line := []byte(`{"thread":[{"user_id":"a","score":NaN,"hi":Infinity,"lo":-Infinity,"n":[1,-2.5e3,NaN]}]}` + "\n")

	rec, err := ParseRecord(line)
	require.NoError(t, err)
	require.Len(t, rec.Thread, 1)
	msg := rec.Thread[0]

	score, ok := msg["score"].(float64)
	require.True(t, ok, "score decoded as %T", msg["score"])
	assert.True(t, math.IsNaN(score))
	assert.Equal(t, math.Inf(1), msg["hi"])
	assert.Equal(t, math.Inf(-1), msg["lo"])

	list, ok := msg["n"].([]any)
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, json.Number("1"), list[0])
	assert.Equal(t, json.Number("-2.5e3"), list[1])
	nested, ok := list[2].(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(nested))
}

func TestParseRecordNonFiniteInsideStrings(t *testing.T) {
	line := []byte(`{"thread":[{"user_id":"NaN","text":"Infinity and \"-Infinity\" NaN","k":7}]}`)

	rec, err := ParseRecord(line)
	require.NoError(t, err)
	msg := rec.Thread[0]
	assert.Equal(t, "NaN", msg["user_id"])
	assert.Equal(t, `Infinity and "-Infinity" NaN`, msg["text"])
	assert.Equal(t, json.Number("7"), msg["k"])
}

func TestParseRecordDuplicateKeyLastWins(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"thread":[{"user_id":"a","text":"one","text":"two"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "two", rec.Thread[0]["text"])
}

func TestParseRecordSurrogatePairAccepted(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"thread":[{"user_id":"a","text":"\ud83d\ude00 and \\ud800"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "😀 and \\ud800", rec.Thread[0]["text"])
}

func TestStripUserIDsLeavesOriginalIntact(t *testing.T) {
	original := Thread{
		{"user_id": "h1", "text": "a"},
		{"user_id": "h2", "text": "b"},
	}

	stripped, removed, err := original.StripUserIDs()
	require.NoError(t, err)

	assert.Equal(t, []any{"h1", "h2"}, removed)
	for _, msg := range stripped {
		assert.NotContains(t, msg, UserIDField)
	}
	assert.Equal(t, "h1", original[0]["user_id"])
	assert.Equal(t, "h2", original[1]["user_id"])
	assert.Equal(t, "a", stripped[0]["text"])
}

func TestStripUserIDsMissing(t *testing.T) {
	th := Thread{
		{"user_id": "h1", "text": "a"},
		{"text": "b"},
	}

	_, _, err := th.StripUserIDs()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingUserID))

	var missing *MissingUserIDError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 1, missing.Index)
}

func TestHasUnpairedSurrogate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`"plain"`, false},
		{`"é"`, false},
		{`"😀"`, false},
		{`"\ud83d\ude00"`, false},
		{`"\ud83d"`, true},
		{`"\ud83dx"`, true},
		{`"\ude00"`, true},
		{`"\\ud83d"`, false},
		{`"\\\ud83d"`, true},
		{`"\n😀\t"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, hasUnpairedSurrogate([]byte(tt.in)))
		})
	}
}
