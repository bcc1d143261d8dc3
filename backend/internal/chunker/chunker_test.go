package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trails/backend/pkg/errors"
)

func TestParagraphs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"three paragraphs", "P1.\n\nP2.\n\nP3.", []string{"P1.", "P2.", "P3."}},
		{"trims and drops empties", "  first \n\n\n\n second\n\n   ", []string{"first", "second"}},
		{"single line", "just one", []string{"just one"}},
		{"empty", "", []string{}},
		{"keeps single newlines", "a\nb\n\nc", []string{"a\nb", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Paragraphs{}.Chunk(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecursive(t *testing.T) {
	text := strings.Repeat("word ", 300) + "\n\n" + strings.Repeat("other ", 100)
	got, err := NewRecursive(200, 20).Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(got), 1)
	for _, c := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
	assert.True(t, strings.HasPrefix(got[0], "word"))
	assert.True(t, strings.HasSuffix(got[len(got)-1], "other"))
}

func TestRecursive_ShortTextIsOneChunk(t *testing.T) {
	got, err := NewRecursive(1000, 20).Chunk("short text")
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, got)
}

func TestTokens(t *testing.T) {
	tok, err := NewTokens(DefaultEncoding, 8, 2)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}

	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 5)
	got, err := tok.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(got), 1)
	for _, c := range got {
		assert.LessOrEqual(t, len(tok.enc.Encode(c, nil, nil)), 8)
	}
}

// byteEncoder yields one token per byte, so every multi-byte character
// spans several tokens.
type byteEncoder struct{}

func (byteEncoder) Encode(text string, _ []string, _ []string) []int {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens
}

func (byteEncoder) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, tok := range tokens {
		b[i] = byte(tok)
	}
	return string(b)
}

func TestTokens_NeverSplitsCharacters(t *testing.T) {
	text := "深度学习 🙂 mixed text 数据 🚀🚀 end"
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"window narrower than a character", 2, 0},
		{"window of five bytes", 5, 0},
		{"overlapping windows", 7, 3},
		{"wide window", 16, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Tokens{enc: byteEncoder{}, size: tt.size, overlap: tt.overlap}
			got, err := tok.Chunk(text)
			require.NoError(t, err)
			require.NotEmpty(t, got)
			for _, c := range got {
				assert.True(t, utf8.ValidString(c), "chunk %q is not valid UTF-8", c)
				assert.Contains(t, text, c)
			}
			assert.True(t, strings.HasPrefix(text, got[0]))
			assert.True(t, strings.HasSuffix(text, got[len(got)-1]))
		})
	}
}

func TestTokens_NoOverlapCoversText(t *testing.T) {
	text := "深度学习🙂数据"
	tok := &Tokens{enc: byteEncoder{}, size: 4, overlap: 0}
	got, err := tok.Chunk(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"深", "度", "学", "习", "🙂", "数", "据"}, got)
}

func TestTokens_CJKWithEncoding(t *testing.T) {
	tok, err := NewTokens(DefaultEncoding, 1, 0)
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	got, err := tok.Chunk("深度学习 🙂")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.True(t, utf8.ValidString(c), "chunk %q is not valid UTF-8", c)
	}
}

func TestNewTokens_RejectsBadWindow(t *testing.T) {
	_, err := NewTokens(DefaultEncoding, 0, 0)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))

	_, err = NewTokens(DefaultEncoding, 10, 10)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestNew(t *testing.T) {
	c, err := New("", 0, 0)
	require.NoError(t, err)
	assert.IsType(t, Paragraphs{}, c)

	c, err = New(NameRecursive, 100, 10)
	require.NoError(t, err)
	assert.IsType(t, Recursive{}, c)

	_, err = New("sentences", 100, 10)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestFunc(t *testing.T) {
	var c Chunker = Func(func(text string) ([]string, error) {
		return strings.Fields(text), nil
	})
	got, err := c.Chunk("a b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}
