package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransliterateBrands(t *testing.T) {
	assert.Equal(t, "компрессор Атлас Копко", Transliterate("компрессор Atlas Copco"))
	assert.Equal(t, "Сименс", Transliterate("Siemens"))
	// Unknown Latin words fall back to letter transliteration.
	assert.Equal(t, "принтер микроскоп", Transliterate("принтер mikroskop"))
}

func TestToLatin(t *testing.T) {
	assert.Equal(t, "насос grundfos", ToLatin("насос Грундфос"))
	assert.Equal(t, "обычный текст", ToLatin("обычный текст"))
}

func TestSearchVariants(t *testing.T) {
	variants := SearchVariants("Atlas Copco")
	assert.Equal(t, []string{"Atlas Copco", "Атлас Копко"}, variants)

	variants = SearchVariants("Грундфос")
	assert.Equal(t, []string{"Грундфос", "grundfos"}, variants)

	// No variant for plain Cyrillic without a brand.
	assert.Equal(t, []string{"компьютер"}, SearchVariants("компьютер"))
}

func TestLongestBrandWins(t *testing.T) {
	out := Transliterate("atlas copco compressor")
	assert.Contains(t, out, "Атлас Копко")
	assert.NotContains(t, out, "Атлас к")
}

func TestHasLatinHasCyrillic(t *testing.T) {
	assert.True(t, HasLatin("abc"))
	assert.False(t, HasLatin("абв"))
	assert.True(t, HasCyrillic("абв"))
	assert.False(t, HasCyrillic("abc 123"))
}
