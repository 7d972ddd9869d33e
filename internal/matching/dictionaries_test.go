package matching

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDictionariesLoad(t *testing.T) {
	d := DefaultDictionaries()
	assert.NotEmpty(t, d.StopWords)
	assert.NotEmpty(t, d.CompoundPhrases)
	assert.NotEmpty(t, d.NegativePatterns)
	assert.NotEmpty(t, d.ServiceIndicators)
	assert.True(t, d.IsStopWord("закупка"))
	assert.False(t, d.IsStopWord("компьютер"))
}

func TestBrandClosureIsBidirectional(t *testing.T) {
	d := DefaultDictionaries()
	for _, pair := range d.Brands {
		assert.Contains(t, d.BrandAliases(pair.Latin), pair.Cyrillic, pair.Latin)
		assert.Contains(t, d.BrandAliases(pair.Cyrillic), pair.Latin, pair.Cyrillic)
	}
}

func TestAbbreviationClosureIsBidirectional(t *testing.T) {
	d := DefaultDictionaries()
	assert.Contains(t, d.AbbreviationAliases("ибп"), "источник бесперебойного питания")
	assert.Contains(t, d.AbbreviationAliases("источник бесперебойного питания"), "ибп")
}

func TestLoadDictionariesOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.yaml")
	data := []byte(`
stop_words: [тест]
synonyms:
  Ключ: [Значение]
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	d, err := LoadDictionaries(path)
	require.NoError(t, err)
	assert.True(t, d.IsStopWord("тест"))
	// Keys and values are lowercased at load time.
	assert.Equal(t, []string{"значение"}, d.Synonyms["ключ"])
}

func TestCompoundFor(t *testing.T) {
	d := DefaultDictionaries()
	assert.NotNil(t, d.CompoundFor("компьютерное оборудование"))
	assert.NotNil(t, d.CompoundFor("компьютерное оборудование и серверы"))
	assert.Nil(t, d.CompoundFor("экскаватор"))
}
