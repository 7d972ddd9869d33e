package portal

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCard = `<html><body>
<div class="cardMainInfo">
  <span class="cardMainInfo__title">Начальная цена</span>
  <span class="cardMainInfo__content">3 200 000,00</span>
</div>
<section>
  <span class="section__title">Дата и время окончания срока подачи заявок</span>
  <span class="section__info">20.10.2026 09:00</span>
</section>
<section>
  <span class="section__title">Почтовый адрес</span>
  <span class="section__info">670000, Респ Бурятия, г Улан-Удэ, ул Ленина, дом 30</span>
</section>
<section>
  <span class="section__title">Наименование заказчика</span>
  <span class="section__info">ГАУЗ Республиканская больница</span>
</section>
</body></html>`

func TestCardValue(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(sampleCard)))
	require.NoError(t, err)

	assert.Equal(t, "3 200 000,00", cardValue(doc, "Начальная цена"))
	assert.Equal(t, "20.10.2026 09:00", cardValue(doc, "Дата и время окончания срока подачи заявок"))
	assert.Equal(t, "ГАУЗ Республиканская больница", cardValue(doc, "Наименование заказчика"))
	assert.Equal(t, "", cardValue(doc, "Нет такого поля"))
}

func TestParseAddress(t *testing.T) {
	region, city := parseAddress("670000, Респ Бурятия, г Улан-Удэ, ул Ленина, дом 30")
	assert.Equal(t, "Республика Бурятия", region)
	assert.Equal(t, "г. Улан-Удэ", city)

	region, city = parseAddress("101000, г. Москва, ул. Мясницкая, д. 1")
	assert.Equal(t, "Москва", region)
	assert.Equal(t, "г. Москва", city)

	region, city = parseAddress("360000, Кабардино-Балкарская Республика, Прохладный г, ул. Головко")
	assert.Equal(t, "г. Прохладный", city)
	assert.Contains(t, region, "Кабардино-Балкарская")

	// A street named after the city must not claim the federal-city region.
	region, _ = parseAddress("420000, Республика Татарстан, г Казань, ул Петербургская, д 50")
	assert.Contains(t, region, "Татарстан")
}

func TestIsBureaucratic(t *testing.T) {
	assert.True(t, isBureaucratic("Закупка, осуществляемая в соответствии со статьи 93"))
	assert.False(t, isBureaucratic("Поставка картриджей для принтеров"))
}
