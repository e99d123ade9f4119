//go:build integration

package store

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/database/dbtest"
	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTopic(t *testing.T, db *sql.DB, name string, order int) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(`INSERT INTO topics (name, display_order) VALUES ($1, $2) RETURNING id`, name, order).Scan(&id))
	return id
}

func seedQuestion(t *testing.T, db *sql.DB, topicID int64, text string, lastUsed *time.Time) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(`INSERT INTO questions (topic_id, text, last_used_date) VALUES ($1, $2, $3) RETURNING id`,
		topicID, text, lastUsed).Scan(&id))
	return id
}

func seedUser(t *testing.T, db *sql.DB, topics string, token *string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(`INSERT INTO users (subscribed_topic_ids, push_token) VALUES ($1::bigint[], $2) RETURNING id`,
		topics, token).Scan(&id))
	return id
}

func TestClaimQuestion_PrefersNeverUsed_Integration(t *testing.T) {
	db := dbtest.Open(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	catalog := NewCatalogStore(db, logger)
	ctx := context.Background()

	topicID := seedTopic(t, db, "JavaScript", 0)
	threeDaysAgo := time.Now().AddDate(0, 0, -3)
	seedQuestion(t, db, topicID, "B", &threeDaysAgo)
	a := seedQuestion(t, db, topicID, "A", nil)

	now := time.Now().UTC().Truncate(time.Microsecond)
	q, err := catalog.ClaimQuestion(ctx, topicID, now)
	require.NoError(t, err)
	assert.Equal(t, a, q.ID)
	assert.Equal(t, 1, q.UsageCount)
	require.NotNil(t, q.LastUsedDate)
	assert.WithinDuration(t, now, *q.LastUsedDate, time.Second)
}

func TestClaimQuestion_ConcurrentClaimersGetDistinctRows_Integration(t *testing.T) {
	db := dbtest.Open(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	catalog := NewCatalogStore(db, logger)

	topicID := seedTopic(t, db, "Go", 0)
	for i := 0; i < 4; i++ {
		seedQuestion(t, db, topicID, "q", nil)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := map[int64]int{}
	now := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := catalog.ClaimQuestion(context.Background(), topicID, now)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			claimed[q.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 4)
}

func TestInsertSelectionIfAbsent_ConcurrentInsertsKeepOne_Integration(t *testing.T) {
	db := dbtest.Open(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	selections := NewSelectionStore(db, logger)

	topicID := seedTopic(t, db, "Go", 0)
	q1 := seedQuestion(t, db, topicID, "q1", nil)
	q2 := seedQuestion(t, db, topicID, "q2", nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[int64]bool{}
	for _, qid := range []int64{q1, q2, q1, q2} {
		wg.Add(1)
		go func(qid int64) {
			defer wg.Done()
			stored, created, err := selections.InsertSelectionIfAbsent(context.Background(),
				&models.DailySelection{Date: "2025-06-01", TopicID: topicID, QuestionID: qid})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[stored.ID] = true
			if created {
				createdCount++
			}
		}(qid)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, ids, 1)

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM daily_selections WHERE date = '2025-06-01' AND topic_id = $1`, topicID).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestClaimDispatch_ConcurrentClaimsKeepOne_Integration(t *testing.T) {
	db := dbtest.Open(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	selections := NewSelectionStore(db, logger)

	topicID := seedTopic(t, db, "Go", 0)
	qid := seedQuestion(t, db, topicID, "q1", nil)
	sel, _, err := selections.InsertSelectionIfAbsent(context.Background(),
		&models.DailySelection{Date: "2025-06-01", TopicID: topicID, QuestionID: qid})
	require.NoError(t, err)

	now := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := selections.ClaimDispatch(context.Background(), sel.ID, now, now.Add(-config.DispatchClaimLease))
			if !assert.NoError(t, err) {
				return
			}
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	// an expired lease with no logs is reclaimable
	later := now.Add(2 * config.DispatchClaimLease)
	claimed, err := selections.ClaimDispatch(context.Background(), sel.ID, later, later.Add(-config.DispatchClaimLease))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRecordActivity_StreakRule_Integration(t *testing.T) {
	db := dbtest.Open(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	users := NewUserStore(db, logger)
	ctx := context.Background()

	userID := seedUser(t, db, "{}", nil)

	steps := []struct {
		day  string
		want int
	}{
		{"2025-06-01", 1},
		{"2025-06-01", 1},
		{"2025-06-02", 2},
		{"2025-06-03", 3},
		{"2025-06-05", 1},
		{"2025-06-04", 1},
	}
	for _, step := range steps {
		streak, err := users.RecordActivity(ctx, userID, step.day)
		require.NoError(t, err)
		assert.Equal(t, step.want, streak.Count, "day %s", step.day)
	}

	u, err := users.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", *u.Streak.LastActiveDate)

	n, err := users.ResetStaleStreaks(ctx, "2025-06-08")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTokens_FlagAndClear_Integration(t *testing.T) {
	db := dbtest.Open(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	users := NewUserStore(db, logger)
	ctx := context.Background()

	topicID := seedTopic(t, db, "Go", 0)
	tok1, tok2 := "tok-1", "tok-2"
	u1 := seedUser(t, db, "{"+strconv.FormatInt(topicID, 10)+"}", &tok1)
	seedUser(t, db, "{"+strconv.FormatInt(topicID, 10)+"}", &tok2)
	seedUser(t, db, "{}", &tok2)

	recipients, err := users.ListEligibleRecipients(ctx, topicID)
	require.NoError(t, err)
	assert.Len(t, recipients, 2)

	flagged, err := users.FlagTokensInvalid(ctx, []models.Recipient{{UserID: u1, Token: tok1}, {UserID: u1 + 1, Token: "rotated-away"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), flagged)

	recipients, err = users.ListEligibleRecipients(ctx, topicID)
	require.NoError(t, err)
	assert.Len(t, recipients, 1)

	cleared, err := users.ClearInvalidTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)
}
