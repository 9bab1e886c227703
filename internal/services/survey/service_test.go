package survey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/pkg/logger"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeSender) SendMessage(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestSurvey_OpenAndAnswer(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := NewService(sender, nil, nil, logger.Get())

	assert.False(t, svc.HasOpenSurvey("party"))

	require.NoError(t, svc.Open(ctx, "party"))
	assert.True(t, svc.HasOpenSurvey("party"))
	assert.Contains(t, sender.last(), "nota de *1* a *5*")

	// Invalid answers keep the survey open
	require.NoError(t, svc.HandleResponse(ctx, "party", "ótimo!"))
	assert.True(t, svc.HasOpenSurvey("party"))

	require.NoError(t, svc.HandleResponse(ctx, "party", "7"))
	assert.True(t, svc.HasOpenSurvey("party"))

	// A rating closes it
	require.NoError(t, svc.HandleResponse(ctx, "party", " 4 "))
	assert.False(t, svc.HasOpenSurvey("party"))
	assert.Contains(t, sender.last(), "Obrigado pela avaliação")
}

func TestSurvey_RatingWithComment(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := NewService(sender, nil, nil, logger.Get())

	require.NoError(t, svc.Open(ctx, "party"))
	require.NoError(t, svc.HandleResponse(ctx, "party", "5 entrega rápida, pizza ótima"))

	assert.False(t, svc.HasOpenSurvey("party"))
	assert.Contains(t, sender.last(), "Obrigado pela avaliação")
}

func TestSurvey_Expire(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	svc := NewService(&fakeSender{}, nil, clock, logger.Get())

	require.NoError(t, svc.Open(ctx, "old"))

	clock.now = clock.now.Add(25 * time.Hour)
	require.NoError(t, svc.Open(ctx, "recent"))

	expired := svc.Expire(24 * time.Hour)
	assert.Equal(t, 1, expired)
	assert.False(t, svc.HasOpenSurvey("old"))
	assert.True(t, svc.HasOpenSurvey("recent"))
}

func TestSurvey_ReopenRefreshesWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	svc := NewService(&fakeSender{}, nil, clock, logger.Get())

	require.NoError(t, svc.Open(ctx, "party"))

	clock.now = clock.now.Add(23 * time.Hour)
	require.NoError(t, svc.Open(ctx, "party"))

	clock.now = clock.now.Add(2 * time.Hour)
	assert.Equal(t, 0, svc.Expire(24*time.Hour))
	assert.True(t, svc.HasOpenSurvey("party"))
}
