package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
)

type failingPlanner struct{ err error }

func (p *failingPlanner) CreatePlan(context.Context, models.RiskEvaluation) ([]models.MitigationAction, error) {
	return nil, p.err
}

func testEvaluation(level models.RiskLevel) models.RiskEvaluation {
	return models.RiskEvaluation{
		RiskID:              "r-1",
		ClassificationID:    "c-1",
		EventID:             "e-1",
		LaneID:              "lane-mum-del",
		LaneName:            "Mumbai - Delhi",
		RiskLevel:           level,
		RiskScore:           0.85,
		LaneRelevance:       1,
		PredictedDelayHours: 96,
		EvaluatedAtUTC:      "2026-03-01T10:00:00Z",
	}
}

func TestRuleBasedPlannerEscalationLadder(t *testing.T) {
	p := NewRuleBasedPlanner()
	ctx := context.Background()

	critical, err := p.CreatePlan(ctx, testEvaluation(models.RiskLevelCritical))
	require.NoError(t, err)
	require.Len(t, critical, 3)
	assert.Equal(t, models.ActionReroute, critical[0].ActionType)
	assert.Equal(t, models.ActionBufferInventory, critical[1].ActionType)
	assert.Equal(t, models.ActionNotifyPlanner, critical[2].ActionType)
	assert.Equal(t, 1, critical[0].Priority)

	high, err := p.CreatePlan(ctx, testEvaluation(models.RiskLevelHigh))
	require.NoError(t, err)
	require.Len(t, high, 2)
	assert.Equal(t, models.ActionExpedite, high[0].ActionType)

	low, err := p.CreatePlan(ctx, testEvaluation(models.RiskLevelLow))
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, models.ActionNotifyPlanner, low[0].ActionType)
}

func TestMitigationServicePublishesPlan(t *testing.T) {
	b, _ := newPipelineBus(t)
	svc := NewMitigationService(NewRuleBasedPlanner(), b, 3, time.Millisecond)
	ctx := context.Background()

	rec, err := b.Publish(ctx, models.StreamRiskEvaluations, testEvaluation(models.RiskLevelCritical))
	require.NoError(t, err)
	require.NoError(t, svc.Handler()(ctx, rec))

	records, err := b.ReadRecent(ctx, models.StreamMitigationPlans, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	plan, err := bus.DecodeMessage[models.MitigationPlan](records[0])
	require.NoError(t, err)
	assert.NotEmpty(t, plan.PlanID)
	assert.Equal(t, "r-1", plan.RiskID)
	assert.Equal(t, "e-1", plan.EventID)
	assert.Equal(t, "lane-mum-del", plan.LaneID)
	assert.Equal(t, models.RiskLevelCritical, plan.RiskLevel)
	assert.InDelta(t, 96, plan.PredictedDelayHours, 1e-9)
	assert.Len(t, plan.Actions, 3)

	counters := svc.Counters()
	assert.Equal(t, int64(1), counters.Received)
	assert.Equal(t, int64(1), counters.Published)
}

func TestMitigationServicePlannerFailure(t *testing.T) {
	b, _ := newPipelineBus(t)
	svc := NewMitigationService(&failingPlanner{err: errors.New("no capacity data")}, b, 3, time.Millisecond)
	ctx := context.Background()

	rec, err := b.Publish(ctx, models.StreamRiskEvaluations, testEvaluation(models.RiskLevelHigh))
	require.NoError(t, err)

	err = svc.Handler()(ctx, rec)
	require.Error(t, err)
	assert.Equal(t, int64(1), svc.Counters().Failed)

	records, err := b.ReadRecent(ctx, models.StreamMitigationPlans, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
