package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

func testChecker(llm *Client) *Checker {
	return NewChecker(llm, nil)
}

func checkReq() CheckRequest {
	return CheckRequest{
		TenderName:     "Поставка компьютеров",
		FilterIntent:   "Пользователь ищет тендеры на поставку компьютерной техники",
		FilterKeywords: []string{"компьютер"},
		UserID:         42,
		Tier:           domain.TierBasic,
	}
}

func TestCheckNoBackendFailsOpen(t *testing.T) {
	c := testChecker(&Client{})
	res := c.Check(context.Background(), checkReq())

	assert.True(t, res.IsRelevant)
	assert.Equal(t, 50, res.Confidence)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, -1, res.QuotaRemaining)
}

func TestCheckQuotaExceededFailsOpen(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"relevant": true, "confidence": 95, "reason": "ok"}`)
	c := testChecker(testClient(srv.URL))

	req := checkReq()
	req.Tier = domain.TierTrial
	limit := domain.LimitsFor(req.Tier).DailyAIChecks
	for i := 0; i < limit; i++ {
		c.quota.Increment(context.Background(), req.UserID)
	}

	res := c.Check(context.Background(), req)
	assert.True(t, res.IsRelevant)
	assert.Equal(t, SourceQuotaExceeded, res.Source)
	assert.Equal(t, 0, res.QuotaRemaining)
}

func TestCheckAcceptsHighConfidence(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"relevant": true, "confidence": 92, "reason": "прямое совпадение темы"}`)
	c := testChecker(testClient(srv.URL))

	res := c.Check(context.Background(), checkReq())
	assert.True(t, res.IsRelevant)
	assert.Equal(t, 92, res.Confidence)
	assert.Equal(t, SourceAI, res.Source)
	assert.Equal(t, domain.LimitsFor(domain.TierBasic).DailyAIChecks-1, res.QuotaRemaining)
}

func TestCheckLowConfidenceOverridesToReject(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"relevant": true, "confidence": 60, "reason": "возможно подходит"}`)
	c := testChecker(testClient(srv.URL))

	res := c.Check(context.Background(), checkReq())
	assert.False(t, res.IsRelevant)
	assert.Equal(t, 60, res.Confidence)
	assert.Contains(t, res.Reason, "Недостаточная уверенность (60%)")
	assert.Equal(t, SourceAI, res.Source)
}

func TestCheckModelRejection(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"relevant": false, "confidence": 5, "reason": "услуга, не товар"}`)
	c := testChecker(testClient(srv.URL))

	res := c.Check(context.Background(), checkReq())
	assert.False(t, res.IsRelevant)
	assert.Equal(t, 5, res.Confidence)
	assert.Equal(t, "услуга, не товар", res.Reason)
}

func TestCheckCachesVerdicts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"relevant\": true, \"confidence\": 90, \"reason\": \"ok\"}"}}]}`))
	}))
	defer srv.Close()
	c := testChecker(testClient(srv.URL))

	first := c.Check(context.Background(), checkReq())
	require.Equal(t, SourceAI, first.Source)

	// Same tender in different case hits the same cache entry.
	req := checkReq()
	req.TenderName = "ПОСТАВКА КОМПЬЮТЕРОВ"
	second := c.Check(context.Background(), req)
	assert.Equal(t, SourceCache, second.Source)
	assert.True(t, second.IsRelevant)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheckErrorFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := testChecker(testClient(srv.URL))

	res := c.Check(context.Background(), checkReq())
	assert.True(t, res.IsRelevant)
	assert.Equal(t, 50, res.Confidence)
	assert.Equal(t, SourceError, res.Source)
}

func TestCheckRedisBackedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	srv, _ := fakeOpenAI(t, `{"relevant": true, "confidence": 95, "reason": "ok"}`)
	c := NewChecker(testClient(srv.URL), rdb)

	first := c.Check(context.Background(), checkReq())
	require.Equal(t, SourceAI, first.Source)

	second := c.Check(context.Background(), checkReq())
	assert.Equal(t, SourceCache, second.Source)

	// Entries expire after the cache window.
	mr.FastForward(25 * time.Hour)
	third := c.Check(context.Background(), checkReq())
	assert.Equal(t, SourceAI, third.Source)
}

func TestGoodsTypeInstructionInPrompt(t *testing.T) {
	srv, last := fakeOpenAI(t, `{"relevant": false, "confidence": 5, "reason": "услуга"}`)
	c := testChecker(testClient(srv.URL))

	req := checkReq()
	req.TenderTypes = []domain.TenderType{domain.TenderGoods}
	c.Check(context.Background(), req)

	require.Len(t, last.Messages, 1)
	assert.Contains(t, last.Messages[0].Content, "ТОЛЬКО товары")
}

func TestGenerateIntentFallback(t *testing.T) {
	c := testChecker(&Client{})
	intent := c.GenerateIntent(context.Background(), "Компьютеры", []string{"компьютер", "ноутбук"}, nil)
	assert.Equal(t, "Поиск тендеров по теме: Компьютеры. Ключевые слова: компьютер, ноутбук", intent)
}

func TestGenerateIntentFromModel(t *testing.T) {
	srv, last := fakeOpenAI(t, "Пользователь ищет тендеры на поставку компьютерной техники.")
	c := testChecker(testClient(srv.URL))

	intent := c.GenerateIntent(context.Background(), "Компьютеры", []string{"компьютер"}, []string{"ремонт"})
	assert.Equal(t, "Пользователь ищет тендеры на поставку компьютерной техники.", intent)
	assert.Contains(t, last.Messages[0].Content, "Исключить: ремонт")
}

func TestRelatedTerms(t *testing.T) {
	srv, _ := fakeOpenAI(t, "оргтехника, вычислительная техника, моноблок, рабочая станция, сервер, лишний")
	c := testChecker(testClient(srv.URL))

	terms := c.RelatedTerms(context.Background(), "Компьютеры", []string{"компьютер"})
	assert.Equal(t, []string{"оргтехника", "вычислительная техника", "моноблок", "рабочая станция", "сервер"}, terms)

	assert.Nil(t, testChecker(&Client{}).RelatedTerms(context.Background(), "x", nil))
}
