package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func tptr(t time.Time) *time.Time { return &t }

func baseFilter() *domain.Filter {
	return &domain.Filter{
		ID:       1,
		UserID:   1,
		Name:     "Компьютеры",
		Keywords: []string{"компьютер"},
		Regions:  []string{"Москва"},
		PriceMin: ptr(100000),
		PriceMax: ptr(5000000),
		IsActive: true,
	}
}

func baseTender(now time.Time) *domain.Tender {
	return &domain.Tender{
		Number:             "1",
		Name:               "Поставка компьютеров",
		Price:              2500000,
		CustomerRegion:     "Москва",
		SubmissionDeadline: tptr(now.Add(7 * 24 * time.Hour)),
		PublishedDate:      tptr(now),
	}
}

func TestSimpleMatchScoresAtLeast60(t *testing.T) {
	now := time.Now()
	m := New(nil)

	res, err := m.Match(baseTender(now), baseFilter(), now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.GreaterOrEqual(t, res.Score, 60)
	assert.Contains(t, res.MatchedKeywords, "компьютер")
}

func TestExcludeKeywordRejects(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := baseFilter()
	f.ExcludeKeywords = []string{"Dell"}
	tender := baseTender(now)
	tender.Name = "Поставка компьютеров Dell"

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCompoundPhraseSynonymHit(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"служба каталогов"}}
	tender := &domain.Tender{Number: "2", Name: "Закупка Active Directory", PublishedDate: tptr(now)}

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.GreaterOrEqual(t, res.Score, 35)
}

func TestNegativePatternRejects(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"служба"}}
	tender := &domain.Tender{Number: "3", Name: "Военная служба по контракту"}

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEmptyKeywordsIsContractViolation(t *testing.T) {
	now := time.Now()
	m := New(nil)
	_, err := m.Match(baseTender(now), &domain.Filter{}, now)
	assert.ErrorIs(t, err, domain.ErrEmptyKeywords)
}

func TestPriceBoundsInclusive(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := baseFilter()

	onMin := baseTender(now)
	onMin.Price = *f.PriceMin
	res, err := m.Match(onMin, f, now)
	require.NoError(t, err)
	assert.NotNil(t, res)

	onMax := baseTender(now)
	onMax.Price = *f.PriceMax
	res, err = m.Match(onMax, f, now)
	require.NoError(t, err)
	assert.NotNil(t, res)

	below := baseTender(now)
	below.Price = *f.PriceMin - 1
	res, err = m.Match(below, f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestUnknownPricePassesPriceFilter(t *testing.T) {
	now := time.Now()
	m := New(nil)
	tender := baseTender(now)
	tender.Price = 0

	res, err := m.Match(tender, baseFilter(), now)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestUnknownRegionPasses(t *testing.T) {
	now := time.Now()
	m := New(nil)
	tender := baseTender(now)
	tender.CustomerRegion = ""

	res, err := m.Match(tender, baseFilter(), now)
	require.NoError(t, err)
	assert.NotNil(t, res)

	tender.CustomerRegion = "Самарская область"
	res, err = m.Match(tender, baseFilter(), now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStageGate(t *testing.T) {
	now := time.Now()
	m := New(nil)

	expired := baseTender(now)
	expired.SubmissionDeadline = tptr(now.Add(-3 * 24 * time.Hour))

	res, err := m.Match(expired, baseFilter(), now)
	require.NoError(t, err)
	assert.Nil(t, res, "submission stage must reject past deadlines")

	archive := baseFilter()
	archive.Stage = domain.StageArchive
	res, err = m.Match(expired, archive, now)
	require.NoError(t, err)
	assert.NotNil(t, res, "archive stage accepts past deadlines")

	active := baseTender(now)
	res, err = m.Match(active, archive, now)
	require.NoError(t, err)
	assert.Nil(t, res, "archive stage rejects active tenders")
}

func TestGoodsOnlyServiceIndicatorRejects(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := baseFilter()
	f.Keywords = []string{"оборудование"}
	f.TenderTypes = []domain.TenderType{domain.TenderGoods}
	tender := baseTender(now)
	tender.Name = "Оказание услуг по ремонту оборудования"

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestPublicationAgeLimit(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := baseFilter()
	f.PublicationDays = 3
	tender := baseTender(now)
	tender.PublishedDate = tptr(now.Add(-5 * 24 * time.Hour))

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestShortKeywordBothBoundaries(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"пк"}}

	hit := &domain.Tender{Number: "4", Name: "Поставка ПК"}
	res, err := m.Match(hit, f, now)
	require.NoError(t, err)
	assert.NotNil(t, res)

	miss := &domain.Tender{Number: "5", Name: "Операционный стол, закупка"}
	res, err = m.Match(miss, f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestRootPrefixMatch(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"компьютеры"}}
	tender := &domain.Tender{Number: "6", Name: "Поставка компьютерного оборудования"}

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	// Root prefix (+18) scores lower than a direct hit (+25); ×1.2 coverage.
	assert.Equal(t, 22, res.Score)
}

func TestBrandAliasBidirectional(t *testing.T) {
	now := time.Now()
	m := New(nil)

	latinKey := &domain.Filter{Keywords: []string{"grundfos"}}
	cyrillicText := &domain.Tender{Number: "7", Name: "Поставка насосов Грундфос"}
	res, err := m.Match(cyrillicText, latinKey, now)
	require.NoError(t, err)
	assert.NotNil(t, res)

	cyrillicKey := &domain.Filter{Keywords: []string{"грундфос"}}
	latinText := &domain.Tender{Number: "8", Name: "Поставка насосов Grundfos"}
	res, err = m.Match(latinText, cyrillicKey, now)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestAbbreviationAlias(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"источник бесперебойного питания"}}
	tender := &domain.Tender{Number: "9", Name: "Поставка ИБП для серверной"}

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestStopWordsOnlyKeywordsReject(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"закупка", "поставка", "для"}}

	res, err := m.Match(baseTender(now), f, now)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCoverageAdjustment(t *testing.T) {
	now := time.Now()
	m := New(nil)

	// 1 of 4 keys matched, ratio 0.25 < 0.3 with >=3 keys: minus 30%.
	f := &domain.Filter{Keywords: []string{"компьютер", "экскаватор", "вертолет", "трактор"}}
	tender := &domain.Tender{Number: "10", Name: "Поставка компьютеров"}
	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 18, res.Score) // 25 * 0.7 = 17.5 → 18

	// Full coverage: plus 20%.
	f = &domain.Filter{Keywords: []string{"компьютер"}}
	res, err = m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 30, res.Score) // 25 * 1.2
}

func TestRecencyBonus(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{Keywords: []string{"компьютер"}}

	today := &domain.Tender{Number: "11", Name: "Поставка компьютеров", PublishedDate: tptr(now)}
	res, err := m.Match(today, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 40, res.Score) // 25*1.2 + 10

	stale := &domain.Tender{Number: "12", Name: "Поставка компьютеров", PublishedDate: tptr(now.Add(-4 * 24 * time.Hour))}
	res, err = m.Match(stale, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 30, res.Score) // no recency bonus
}

func TestScoreBounds(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := &domain.Filter{
		Keywords: []string{"компьютерное оборудование", "компьютер", "принтер", "сервер"},
		PriceMin: ptr(100000),
		PriceMax: ptr(5000000),
	}
	tender := &domain.Tender{
		Number:        "13",
		Name:          "Поставка компьютерного оборудования: компьютеры, принтеры, серверы, оргтехника",
		Price:         2550000,
		PublishedDate: tptr(now),
	}
	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.LessOrEqual(t, res.Score, 100)
	assert.GreaterOrEqual(t, res.Score, 0)
}

func TestHardRejectDeterminism(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := baseFilter()
	f.ExcludeKeywords = []string{"ремонт"}
	tender := baseTender(now)
	tender.Name = "Ремонт компьютеров"

	for i := 0; i < 3; i++ {
		res, err := m.Match(tender, f, now)
		require.NoError(t, err)
		assert.Nil(t, res)
	}
}

func TestPriceCentralityBonus(t *testing.T) {
	assert.Equal(t, 20, priceCentralityBonus(2550000, ptr(100000), ptr(5000000)))
	assert.Equal(t, 0, priceCentralityBonus(100000, ptr(100000), ptr(5000000)))
	assert.Equal(t, 0, priceCentralityBonus(0, ptr(100000), ptr(5000000)))
	assert.Equal(t, 0, priceCentralityBonus(300000, nil, ptr(5000000)))
}

func TestShortDeadlineRedFlag(t *testing.T) {
	now := time.Now()
	m := New(nil)
	tender := baseTender(now)
	tender.SubmissionDeadline = tptr(now.Add(48 * time.Hour))

	res, err := m.Match(tender, baseFilter(), now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Contains(t, res.RedFlags, "до окончания подачи менее 3 дней")
}

func TestArchivalTenderRedFlag(t *testing.T) {
	now := time.Now()
	m := New(nil)
	f := baseFilter()
	f.Stage = domain.StageArchive
	tender := baseTender(now)
	tender.SubmissionDeadline = tptr(now.Add(-24 * time.Hour))

	res, err := m.Match(tender, f, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Contains(t, res.RedFlags, "приём заявок завершён")
}

func TestPriceEdgeRedFlag(t *testing.T) {
	now := time.Now()
	m := New(nil)
	tender := baseTender(now)
	tender.Price = 100000 // exactly price_min

	res, err := m.Match(tender, baseFilter(), now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Contains(t, res.RedFlags, "цена на границе диапазона фильтра")
}

func TestComfortableMatchHasNoRedFlags(t *testing.T) {
	now := time.Now()
	m := New(nil)

	res, err := m.Match(baseTender(now), baseFilter(), now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.RedFlags)
}
