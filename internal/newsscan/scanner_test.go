package newsscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/policy"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/service/signal"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Calgary Business</title>
  <item>
    <title>Acme Logistics relocating head office to Quarry Park</title>
    <link>https://news.example.com/acme-relocating?utm_source=rss</link>
    <description>&lt;p&gt;The firm will &lt;b&gt;relocate&lt;/b&gt; 120 staff.&lt;/p&gt;</description>
    <pubDate>Mon, 03 Mar 2025 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Flames win in overtime</title>
    <link>https://news.example.com/flames</link>
    <description>Hockey recap, new arena expansion talk.</description>
  </item>
  <item>
    <title>Weekend weather looks mild</title>
    <link>https://news.example.com/weather</link>
    <description>Sunny skies.</description>
  </item>
</channel>
</rss>`

func newRules(t *testing.T) *policy.Classifier {
	t.Helper()
	rules, err := policy.New(config.PolicyConfig{
		DefaultTier: "C",
		SignalTypes: map[string]config.SignalTypePolicy{
			"relocation": {Tier: "A", Priority: 90, IndustryCode: "NEWS25", Keywords: []string{"relocat"}},
			"expansion":  {Tier: "B", Priority: 70, Keywords: []string{"expansion"}},
		},
		BlockKeywords: []string{"hockey"},
	})
	require.NoError(t, err)
	return rules
}

func newSignals(t *testing.T, rules *policy.Classifier) (*signal.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	contacts := contact.NewService(store.Contacts(), rules, contact.Options{})
	return signal.NewService(store.Signals(), contacts, rules, nil), store
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScanner_KeywordOnly(t *testing.T) {
	rules := newRules(t)
	signals, _ := newSignals(t, rules)
	srv := feedServer(t)

	s := NewScanner(signals, rules, Options{
		Sources: []config.NewsSource{{Name: "calgary-business", URL: srv.URL, City: "Calgary"}},
		HTTP:    srv.Client(),
	})
	ctx := context.Background()

	r := s.ScanAll(ctx)
	assert.Equal(t, 1, r.Feeds)
	assert.Equal(t, 3, r.Articles)
	assert.Equal(t, 1, r.Blocked)
	assert.Equal(t, 1, r.Rejected)
	assert.Equal(t, 1, r.Ingested)
	assert.Equal(t, 0, r.Promoted)

	sig, err := signals.GetByURL(ctx, "https://news.example.com/acme-relocating")
	require.NoError(t, err)
	assert.Equal(t, "relocation", sig.SignalType)
	assert.Equal(t, "Calgary", sig.City)
	assert.Equal(t, "The firm will relocate 120 staff.", sig.Snippet)
	require.NotNil(t, sig.PublishedAt)

	again := s.ScanAll(ctx)
	assert.Equal(t, 1, again.Seen)
	assert.Equal(t, 0, again.Ingested)
}

type fakeBedrock struct {
	answer string
	err    error
	calls  int
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var req bedrockRequest
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, err
	}
	if req.AnthropicVersion != "bedrock-2023-05-31" {
		return nil, errors.New("bad version")
	}
	body, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": f.answer}},
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestScanner_BedrockAutoPromote(t *testing.T) {
	rules := newRules(t)
	signals, store := newSignals(t, rules)
	srv := feedServer(t)
	model := &fakeBedrock{answer: "SIGNAL\ntype: relocation\ncompany: Acme Logistics\ncity: Calgary"}

	s := NewScanner(signals, rules, Options{
		Sources:     []config.NewsSource{{Name: "calgary-business", URL: srv.URL, City: "Calgary"}},
		HTTP:        srv.Client(),
		AutoPromote: true,
		Classifier:  NewBedrockClassifier(model, "anthropic.claude-3-haiku-20240307-v1:0", rules),
	})
	ctx := context.Background()

	r := s.ScanAll(ctx)
	assert.Equal(t, 1, model.calls, "only keyword-positive articles reach the model")
	assert.Equal(t, 1, r.Ingested)
	assert.Equal(t, 1, r.Promoted)

	sig, err := signals.GetByURL(ctx, "https://news.example.com/acme-relocating")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalPromoted, sig.Status)
	require.NotNil(t, sig.ContactID)

	c, err := store.Contacts().Get(ctx, *sig.ContactID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Logistics", c.CompanyName)
	assert.Equal(t, domain.TierA, c.Tier)
	assert.Equal(t, 90, c.PriorityScore)
}

func TestScanner_FeedErrorsAreCounted(t *testing.T) {
	rules := newRules(t)
	signals, _ := newSignals(t, rules)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewScanner(signals, rules, Options{
		Sources: []config.NewsSource{{Name: "dead", URL: srv.URL}},
		HTTP:    srv.Client(),
	})
	r := s.ScanAll(context.Background())
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 0, r.Feeds)
}

func TestParseVerdict(t *testing.T) {
	known := []string{"expansion", "relocation"}

	c, ok := parseVerdict("SIGNAL\ntype: Relocation\ncompany: Unknown\ncity: Calgary", known, "expansion")
	require.True(t, ok)
	assert.Equal(t, "relocation", c.SignalType)
	assert.Empty(t, c.CompanyName)
	assert.Equal(t, "Calgary", c.City)

	c, ok = parseVerdict("SIGNAL\ntype: zoning\ncompany: Northwind", known, "expansion")
	require.True(t, ok)
	assert.Equal(t, "expansion", c.SignalType)
	assert.Equal(t, "Northwind", c.CompanyName)

	_, ok = parseVerdict("NO_SIGNAL", known, "expansion")
	assert.False(t, ok)
	_, ok = parseVerdict("SIGNAL\ncompany: Acme", known, "expansion")
	assert.False(t, ok)
}
