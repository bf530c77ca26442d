package repository_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/judgeboard/internal/adapters/auth"
	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/ledger"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/registration"
)

// postgresDSNEnv names a disposable database. Its tables are truncated.
const postgresDSNEnv = "JUDGEBOARD_TEST_POSTGRES_DSN"

func openPostgres(t *testing.T) (*repository.PostgresStore, *gorm.DB) {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	store := repository.NewPostgresStore(db, nil)
	ctx := context.Background()
	require.NoError(t, store.AutoMigrate(ctx))
	require.NoError(t, db.Exec(
		"TRUNCATE judges, judge_specializations, judge_court_assignments, participants, scores RESTART IDENTITY",
	).Error)
	t.Cleanup(func() { _ = store.Close() })

	seed := repository.Seed{Participants: []model.Participant{
		{ID: "p-zed", Username: "zed", DisplayName: "Zed"},
		{ID: "p-alice", Username: "alice", DisplayName: "alice"},
		{ID: "p-bob", Username: "bob", DisplayName: "Bob"},
		{ID: "p-same-2", Username: "same2", DisplayName: "Same"},
		{ID: "p-same-1", Username: "same1", DisplayName: "Same"},
	}}
	require.NoError(t, seed.Apply(ctx, store))
	return store, db
}

func judgeProfile(i int) model.JudgeProfile {
	n := strconv.Itoa(i)
	return model.JudgeProfile{
		Username:     "judge_" + n,
		DisplayName:  "Judge " + n,
		FirstName:    "Jo",
		LastName:     "Bench",
		Email:        "judge" + n + "@court.io",
		Phone:        "555-123-4567",
		BarNumber:    "BAR-" + n,
		LicenseState: "NY",
	}
}

func newRegistrar(t *testing.T, store repository.Store) *registration.Registrar {
	t.Helper()
	r, err := registration.New(store, auth.NewBcryptHasher(bcrypt.MinCost))
	require.NoError(t, err)
	return r
}

func TestPostgresStoreConcurrentScores(t *testing.T) {
	store, db := openPostgres(t)
	ctx := context.Background()
	reg := newRegistrar(t, store)

	judgeID, err := reg.RegisterJudge(ctx, registration.Registration{Profile: judgeProfile(1), Password: "gavel-down"})
	require.NoError(t, err)
	otherID, err := reg.RegisterJudge(ctx, registration.Registration{Profile: judgeProfile(2), Password: "gavel-down"})
	require.NoError(t, err)

	l := ledger.New(store)
	const writers = 16

	var (
		mu       sync.Mutex
		outcomes = map[model.Outcome]int{}
		values   = map[int]bool{}
	)
	var g errgroup.Group
	for i := range writers {
		value := 10 + i
		values[value] = true
		g.Go(func() error {
			res, err := l.SubmitScore(ctx, model.Identity{JudgeID: judgeID}, model.Submission{ParticipantID: "p-bob", Value: value})
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	t.Run("one row per pair", func(t *testing.T) {
		assert.Equal(t, 1, outcomes[model.OutcomeCreated])
		assert.Equal(t, writers-1, outcomes[model.OutcomeUpdated])

		var rows int64
		require.NoError(t, db.Table("scores").Where("judge_id = ? AND participant_id = ?", judgeID, "p-bob").Count(&rows).Error)
		assert.EqualValues(t, 1, rows)

		stored, err := l.JudgeScore(ctx, judgeID, "p-bob")
		require.NoError(t, err)
		assert.True(t, values[stored.Value], "stored value %d was never submitted", stored.Value)
		assert.False(t, stored.UpdatedAt.Before(stored.CreatedAt))
	})

	_, err = l.SubmitScore(ctx, model.Identity{JudgeID: otherID}, model.Submission{ParticipantID: "p-bob", Value: 50, Comment: "steady"})
	require.NoError(t, err)
	current, err := l.JudgeScore(ctx, judgeID, "p-bob")
	require.NoError(t, err)

	t.Run("tallies group by participant", func(t *testing.T) {
		err := store.View(ctx, func(r repository.Reader) error {
			tally, err := r.Tally("p-bob")
			require.NoError(t, err)
			assert.EqualValues(t, current.Value+50, tally.Sum)
			assert.Equal(t, 2, tally.Count)
			assert.False(t, tally.LastUpdated.IsZero())

			empty, err := r.Tally("p-zed")
			require.NoError(t, err)
			assert.Equal(t, model.Tally{}, empty)

			all, err := r.Tallies()
			require.NoError(t, err)
			assert.Len(t, all, 1)
			assert.Equal(t, tally.Sum, all["p-bob"].Sum)

			last, err := r.LastScoreUpdate()
			require.NoError(t, err)
			assert.WithinDuration(t, tally.LastUpdated, last, time.Millisecond)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("stats average the score values", func(t *testing.T) {
		stats, err := l.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Judges)
		assert.Equal(t, 5, stats.Participants)
		assert.Equal(t, 2, stats.Scores)
		assert.InDelta(t, float64(current.Value+50)/2, stats.AverageScore, 1e-9)
	})

	t.Run("score views join display names", func(t *testing.T) {
		views, err := l.ParticipantScores(ctx, "p-bob")
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, "Judge 2", views[0].JudgeName)
		assert.Equal(t, "Bob", views[0].ParticipantName)
		assert.Equal(t, "steady", views[0].Comment)

		mine, err := l.JudgeScores(ctx, judgeID, 1)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "Judge 1", mine[0].JudgeName)

		recent, err := l.RecentActivity(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, recent, 2)
	})
}

func TestPostgresStoreParticipantOrder(t *testing.T) {
	store, _ := openPostgres(t)

	var got []string
	err := store.View(context.Background(), func(r repository.Reader) error {
		ps, err := r.Participants()
		for _, p := range ps {
			got = append(got, p.ID)
		}
		return err
	})
	require.NoError(t, err)
	// Byte order puts upper case before lower case; equal names fall back to id.
	assert.Equal(t, []string{"p-bob", "p-same-1", "p-same-2", "p-zed", "p-alice"}, got)
}

func TestPostgresStoreRegistration(t *testing.T) {
	store, db := openPostgres(t)
	ctx := context.Background()
	reg := newRegistrar(t, store)

	t.Run("concurrent duplicates leave one judge and its tags", func(t *testing.T) {
		const racers = 8
		var (
			mu      sync.Mutex
			created []string
			dupes   int
		)
		var g errgroup.Group
		for i := range racers {
			g.Go(func() error {
				p := judgeProfile(100 + i)
				p.Username = "racer"
				id, err := reg.RegisterJudge(ctx, registration.Registration{
					Profile:          p,
					Password:         "gavel-down",
					Specializations:  []string{"Family", "Tax"},
					CourtAssignments: []string{"Court 7"},
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created = append(created, id)
				case errors.Is(err, model.ErrDuplicate):
					dupes++
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		require.Len(t, created, 1)
		assert.Equal(t, racers-1, dupes)

		var judges, specs, courts int64
		require.NoError(t, db.Table("judges").Where("username = ?", "racer").Count(&judges).Error)
		require.NoError(t, db.Table("judge_specializations").Count(&specs).Error)
		require.NoError(t, db.Table("judge_court_assignments").Count(&courts).Error)
		assert.EqualValues(t, 1, judges)
		assert.EqualValues(t, 2, specs)
		assert.EqualValues(t, 1, courts)
	})

	t.Run("email uniqueness ignores case", func(t *testing.T) {
		p := judgeProfile(200)
		_, err := reg.RegisterJudge(ctx, registration.Registration{Profile: p, Password: "gavel-down"})
		require.NoError(t, err)

		p.Username = "judge_200_b"
		p.Email = "JUDGE200@Court.IO"
		_, err = reg.RegisterJudge(ctx, registration.Registration{Profile: p, Password: "gavel-down"})
		var dup *model.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"email"}, dup.Fields)
	})

	t.Run("a failed transaction writes nothing", func(t *testing.T) {
		first := model.Judge{ID: "j-tx-1", Active: true, CreatedAt: time.Now().UTC(), JudgeProfile: judgeProfile(300)}
		second := model.Judge{ID: "j-tx-2", Active: true, CreatedAt: time.Now().UTC(), JudgeProfile: judgeProfile(301)}
		second.Username = first.Username

		err := store.Update(ctx, func(tx repository.Tx) error {
			if err := tx.InsertJudge(first); err != nil {
				return err
			}
			if err := tx.InsertSpecialization(first.ID, "Probate"); err != nil {
				return err
			}
			return tx.InsertJudge(second)
		})
		require.ErrorIs(t, err, repository.ErrUniqueViolation)
		c, ok := repository.ViolatedConstraint(err)
		require.True(t, ok)
		assert.Equal(t, repository.ConstraintJudgeUsername, c)

		err = store.View(ctx, func(r repository.Reader) error {
			_, err := r.Judge(first.ID)
			assert.ErrorIs(t, err, repository.ErrNotFound)
			tags, err := r.Specializations(first.ID)
			require.NoError(t, err)
			assert.Empty(t, tags)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("the score pair index rejects a second row", func(t *testing.T) {
		id, err := reg.RegisterJudge(ctx, registration.Registration{Profile: judgeProfile(400), Password: "gavel-down"})
		require.NoError(t, err)
		now := time.Now().UTC()
		s := model.Score{JudgeID: id, ParticipantID: "p-zed", Value: 5, CreatedAt: now, UpdatedAt: now}

		require.NoError(t, store.Update(ctx, func(tx repository.Tx) error { return tx.InsertScore(s) }))
		err = store.Update(ctx, func(tx repository.Tx) error { return tx.InsertScore(s) })
		c, ok := repository.ViolatedConstraint(err)
		require.True(t, ok)
		assert.Equal(t, repository.ConstraintScorePair, c)
	})
}
