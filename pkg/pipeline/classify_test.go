package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
)

type stubClassifier struct {
	version string
	draft   RiskDraft
	err     error
}

func (c *stubClassifier) ModelVersion() string { return c.version }

func (c *stubClassifier) Classify(context.Context, models.ExternalSignal) (RiskDraft, error) {
	return c.draft, c.err
}

func newPipelineBus(t *testing.T) (*bus.Bus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return bus.New(rdb), rdb
}

func testSignal(content, region string) models.ExternalSignal {
	return models.ExternalSignal{
		EventID:          "e-1",
		SourceType:       models.SourceTypeNews,
		RawContent:       content,
		SourceReference:  "wire-1",
		GeographicScope:  region,
		TimestampUTC:     "2026-03-01T10:00:00Z",
		IngestionTimeUTC: "2026-03-01T10:00:05Z",
		SignalConfidence: 0.8,
	}
}

func publishedRisk(t *testing.T, b *bus.Bus) models.StructuredRisk {
	t.Helper()
	records, err := b.ReadRecent(context.Background(), models.StreamClassifiedEvents, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	risk, err := bus.DecodeMessage[models.StructuredRisk](records[0])
	require.NoError(t, err)
	return risk
}

func TestClassificationUsesConfidentPrimary(t *testing.T) {
	b, _ := newPipelineBus(t)
	primary := &stubClassifier{
		version: "model/v2",
		draft: RiskDraft{
			RiskCategory: models.RiskCategoryWeather,
			Severity:     0.9,
			Confidence:   0.85,
			ImpactRegion: "Mumbai",
			Summary:      "Cyclone approaching",
		},
	}
	svc := NewClassificationService(primary, NewRuleBasedClassifier(), 0.6, b)

	rec, err := b.Publish(context.Background(), models.StreamExternalSignals, testSignal("cyclone inbound", "Mumbai"))
	require.NoError(t, err)
	require.NoError(t, svc.Handler()(context.Background(), rec))

	risk := publishedRisk(t, b)
	assert.Equal(t, "model/v2", risk.ModelVersion)
	assert.Equal(t, models.RiskCategoryWeather, risk.RiskCategory)
	assert.Equal(t, "e-1", risk.EventID)
	assert.NotEmpty(t, risk.ClassificationID)

	counters := svc.Counters()
	assert.Equal(t, int64(1), counters.Published)
	assert.Zero(t, counters.UsedFallback)
}

func TestClassificationFallsBackUnderThreshold(t *testing.T) {
	b, _ := newPipelineBus(t)
	primary := &stubClassifier{
		version: "model/v2",
		draft:   RiskDraft{RiskCategory: models.RiskCategoryDemand, Confidence: 0.2},
	}
	svc := NewClassificationService(primary, NewRuleBasedClassifier(), 0.6, b)

	rec, err := b.Publish(context.Background(), models.StreamExternalSignals,
		testSignal("port strike announced", "Chennai"))
	require.NoError(t, err)
	require.NoError(t, svc.Handler()(context.Background(), rec))

	risk := publishedRisk(t, b)
	assert.Equal(t, "rule-based/v1", risk.ModelVersion)
	assert.Equal(t, models.RiskCategoryLogistics, risk.RiskCategory)
	assert.Equal(t, int64(1), svc.Counters().UsedFallback)
}

func TestClassificationFallsBackOnPrimaryError(t *testing.T) {
	b, _ := newPipelineBus(t)
	primary := &stubClassifier{version: "model/v2", err: errors.New("model unavailable")}
	svc := NewClassificationService(primary, NewRuleBasedClassifier(), 0.6, b)

	rec, err := b.Publish(context.Background(), models.StreamExternalSignals,
		testSignal("flood waters rising", "Assam"))
	require.NoError(t, err)
	require.NoError(t, svc.Handler()(context.Background(), rec))

	risk := publishedRisk(t, b)
	assert.Equal(t, "rule-based/v1", risk.ModelVersion)
	assert.Equal(t, models.RiskCategoryWeather, risk.RiskCategory)
}

func TestClassificationFallbackOnly(t *testing.T) {
	b, _ := newPipelineBus(t)
	svc := NewClassificationService(nil, NewRuleBasedClassifier(), 0.6, b)

	rec, err := b.Publish(context.Background(), models.StreamExternalSignals,
		testSignal("nothing notable here", "Delhi"))
	require.NoError(t, err)
	require.NoError(t, svc.Handler()(context.Background(), rec))

	risk := publishedRisk(t, b)
	assert.Equal(t, models.RiskCategoryLogistics, risk.RiskCategory)
	assert.InDelta(t, 0.3, risk.Severity, 1e-9)
	assert.Zero(t, svc.Counters().UsedFallback)
}
