package dashboard

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safecity/dashboard/internal/core/incidents"
)

type staticSource struct{ ds *incidents.Dataset }

func (s staticSource) Dataset() *incidents.Dataset { return s.ds }

func testDataset() *incidents.Dataset {
	return incidents.NewDataset(2021, []incidents.Record{
		{Year: 2021, SubdivisionCode: "75.1", AreaCode: "75", SubdivisionName: "Paris", InfractionType: "Vols", FactCount: 10},
		{Year: 2021, SubdivisionCode: "75.1", AreaCode: "75", SubdivisionName: "Paris", InfractionType: "Fraudes", FactCount: 2},
		{Year: 2021, SubdivisionCode: "13.1", AreaCode: "13", SubdivisionName: "Marseille", InfractionType: "Vols", FactCount: 4},
		{Year: 2021, SubdivisionCode: "2A.1", AreaCode: "2A", SubdivisionName: "Ajaccio", InfractionType: "Cambriolages", FactCount: 1},
	})
}

func TestSessions_ScopesAreIsolated(t *testing.T) {
	base := testDataset()
	sessions := NewSessions(staticSource{base}, time.Hour, 10)

	a := sessions.Create()
	b := sessions.Create()

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotSame(t, a.Dataset, b.Dataset)
	assert.NotSame(t, base, a.Dataset)
	assert.Equal(t, base.Records(), a.Dataset.Records())

	a.SetSummary(Answer{Text: "pour a"})

	summary, _ := b.Answers()
	assert.Nil(t, summary, "answers stay in their own scope")

	got, ok := sessions.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestSessions_Expiry(t *testing.T) {
	now := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := NewSessions(staticSource{testDataset()}, time.Hour, 10)
	sessions.now = func() time.Time { return now }

	s := sessions.Create()

	now = now.Add(30 * time.Minute)
	_, ok := sessions.Get(s.ID)
	assert.True(t, ok)

	now = now.Add(61 * time.Minute)
	_, ok = sessions.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, sessions.Len())
}

func TestSessions_EvictsLeastRecentlySeen(t *testing.T) {
	now := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := NewSessions(staticSource{testDataset()}, 0, 2)
	sessions.now = func() time.Time { return now }

	first := sessions.Create()
	now = now.Add(time.Second)
	second := sessions.Create()
	now = now.Add(time.Second)

	_, ok := sessions.Get(first.ID)
	require.True(t, ok)
	now = now.Add(time.Second)

	third := sessions.Create()

	assert.Equal(t, 2, sessions.Len())

	_, ok = sessions.Get(second.ID)
	assert.False(t, ok, "second was the least recently seen")

	for _, id := range []uuid.UUID{first.ID, third.ID} {
		_, ok := sessions.Get(id)
		assert.True(t, ok)
	}
}

func TestSessions_Reset(t *testing.T) {
	sessions := NewSessions(staticSource{testDataset()}, time.Hour, 0)
	s := sessions.Create()

	sessions.Reset()

	_, ok := sessions.Get(s.ID)
	assert.False(t, ok)
}

func TestSessions_Sweep(t *testing.T) {
	now := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := NewSessions(staticSource{testDataset()}, time.Hour, 10)
	sessions.now = func() time.Time { return now }

	old := sessions.Create()

	now = now.Add(45 * time.Minute)
	fresh := sessions.Create()

	now = now.Add(30 * time.Minute)
	sessions.Sweep()

	assert.Equal(t, 1, sessions.Len())

	_, ok := sessions.Get(old.ID)
	assert.False(t, ok)

	_, ok = sessions.Get(fresh.ID)
	assert.True(t, ok)
}
