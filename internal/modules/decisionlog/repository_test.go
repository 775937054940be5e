package decisionlog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/quartermaster/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func decisionAt(id string, ts time.Time, allowed bool, reason domain.Reason) domain.GateDecision {
	return domain.GateDecision{
		ID:                id,
		Allowed:           allowed,
		ApprovedUsdc:      200,
		Reason:            reason,
		CurrentWeight:     0.40,
		TargetWeight:      0.40,
		MaxWeight:         0.45,
		HeadroomUsdc:      500,
		TotalValueUsdc:    10000,
		AvailableCashUsdc: 5950,
		DecidedAt:         ts,
	}
}

func request(bot, asset string) domain.BuyRequest {
	return domain.BuyRequest{
		AssetSymbol:   asset,
		BotID:         bot,
		Strategy:      "mfi",
		Timeframe:     "1h",
		SignalType:    "oversold",
		RequestedUsdc: 200,
	}
}

func TestInsertAndRecent(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(decisionAt("d1", now.Add(-2*time.Minute), true, domain.ReasonAllowed), request("bot-a", "BTC")))
	require.NoError(t, repo.Insert(decisionAt("d2", now.Add(-time.Minute), false, domain.ReasonOverBand), request("bot-b", "ETH")))
	require.NoError(t, repo.Insert(decisionAt("d3", now, false, domain.ReasonReserve), request("bot-a", "BTC")))

	records, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "d3", records[0].ID, "newest first")
	assert.Equal(t, "d1", records[2].ID)

	records, err = repo.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "d3", records[0].ID)
}

func TestInsert_RoundTripsContext(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(decisionAt("d1", now, true, domain.ReasonAllowed), request("bot-a", "BTC")))

	records, err := repo.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.Allowed)
	assert.Equal(t, "ALLOWED", rec.Reason)
	assert.Equal(t, "bot-a", rec.BotID)
	assert.Equal(t, "BTC", rec.Asset)
	assert.Equal(t, "mfi", rec.Strategy)
	assert.Equal(t, "1h", rec.Timeframe)
	assert.Equal(t, "oversold", rec.SignalType)
	assert.Equal(t, 0.40, rec.CurrentWeight)
	assert.Equal(t, 0.45, rec.MaxWeight)
	assert.Equal(t, 500.0, rec.HeadroomUsdc)
	assert.Equal(t, 10000.0, rec.TotalValueUsdc)
}

func TestByBotAndByAsset(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(decisionAt("d1", now, true, domain.ReasonAllowed), request("bot-a", "BTC")))
	require.NoError(t, repo.Insert(decisionAt("d2", now, false, domain.ReasonOverBand), request("bot-b", "ETH")))
	require.NoError(t, repo.Insert(decisionAt("d3", now, true, domain.ReasonAllowed), request("bot-a", "ETH")))

	byBot, err := repo.ByBot("bot-a", 10)
	require.NoError(t, err)
	assert.Len(t, byBot, 2)

	byAsset, err := repo.ByAsset("ETH", 10)
	require.NoError(t, err)
	assert.Len(t, byAsset, 2)
}

func TestCountByReason(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(decisionAt("d1", now, true, domain.ReasonAllowed), request("bot-a", "BTC")))
	require.NoError(t, repo.Insert(decisionAt("d2", now, false, domain.ReasonOverBand), request("bot-a", "BTC")))
	require.NoError(t, repo.Insert(decisionAt("d3", now, false, domain.ReasonOverBand), request("bot-b", "ETH")))

	counts, err := repo.CountByReason()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["ALLOWED"])
	assert.Equal(t, int64(2), counts["BLOCKED_OVER_BAND"])
}

func TestDeleteOlderThan(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(decisionAt("old", now.AddDate(0, 0, -40), true, domain.ReasonAllowed), request("bot-a", "BTC")))
	require.NoError(t, repo.Insert(decisionAt("new", now, true, domain.ReasonAllowed), request("bot-a", "BTC")))

	pruned, err := repo.DeleteOlderThan(context.Background(), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	records, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].ID)
}

func TestRecorder_SwallowsPersistenceFailure(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// No schema applied: every insert fails.

	recorder := NewRecorder(NewRepository(db, zerolog.Nop()), zerolog.Nop())

	// Must not panic or propagate - the decision already stands.
	recorder.Record(decisionAt("d1", time.Now().UTC(), true, domain.ReasonAllowed), request("bot-a", "BTC"))
}
