package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/testutil"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func permit(id string, status domain.Status, created time.Time, end *time.Time) *domain.GeneralPermit {
	return &domain.GeneralPermit{
		Envelope: domain.Envelope{
			ID:         id,
			Kind:       domain.KindGeneralPermit,
			Status:     status,
			CreatedBy:  "u-1",
			CreatedAt:  created,
			ModifiedAt: created,
			PlannedEnd: end,
		},
		PermitDetails: domain.PermitDetails{PreventionPlanID: "pp-1", Location: "Zone A"},
	}
}

func at(d time.Duration) *time.Time {
	t := base.Add(d)
	return &t
}

func stores(t *testing.T) map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(*testing.T) Repository { return NewMemoryStore() },
		"postgres": func(t *testing.T) Repository {
			pool := testutil.OpenPGXPool(t, "repository")
			require.NoError(t, Migrate(context.Background(), pool))
			return NewPostgresStore(pool)
		},
	}
}

func TestRepository_CreateLoad(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			rec := permit("gp-1", domain.StatusDraft, base, at(72*time.Hour))
			require.NoError(t, repo.Create(ctx, rec))
			require.EqualValues(t, 1, rec.Version)

			got, err := repo.Load(ctx, "gp-1")
			require.NoError(t, err)
			gp, ok := got.(*domain.GeneralPermit)
			require.True(t, ok)
			require.Equal(t, "Zone A", gp.Location)
			require.EqualValues(t, 1, gp.Version)
			require.True(t, base.Add(72*time.Hour).Equal(*gp.PlannedEnd))

			// loaded copies are independent
			gp.Location = "changed"
			again, err := repo.Load(ctx, "gp-1")
			require.NoError(t, err)
			require.Equal(t, "Zone A", again.(*domain.GeneralPermit).Location)

			err = repo.Create(ctx, permit("gp-1", domain.StatusDraft, base, nil))
			require.ErrorIs(t, err, ErrDuplicate)

			_, err = repo.Load(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepository_SaveCompareAndSwap(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)
			require.NoError(t, repo.Create(ctx, permit("gp-1", domain.StatusDraft, base, nil)))

			loaded, err := repo.Load(ctx, "gp-1")
			require.NoError(t, err)
			expect := Expect(loaded)

			next := loaded.Clone()
			next.Header().Status = domain.StatusPendingManagerReview
			require.NoError(t, repo.Save(ctx, next, expect))
			require.EqualValues(t, 2, next.Header().Version)

			// same expectation again loses
			stale := loaded.Clone()
			stale.Header().Status = domain.StatusPendingManagerReview
			err = repo.Save(ctx, stale, expect)
			require.ErrorIs(t, err, ErrConflict)

			got, err := repo.Load(ctx, "gp-1")
			require.NoError(t, err)
			require.Equal(t, domain.StatusPendingManagerReview, got.Header().Status)
			require.EqualValues(t, 2, got.Header().Version)

			ghost := permit("ghost", domain.StatusDraft, base, nil)
			require.ErrorIs(t, repo.Save(ctx, ghost, Precondition{Status: domain.StatusDraft, Version: 1}), ErrNotFound)
		})
	}
}

func TestRepository_ConcurrentSaveOneWinner(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)
			require.NoError(t, repo.Create(ctx, permit("gp-1", domain.StatusPendingSafetyReview, base, nil)))

			loaded, err := repo.Load(ctx, "gp-1")
			require.NoError(t, err)
			expect := Expect(loaded)

			const writers = 16
			var (
				wg        sync.WaitGroup
				wins      atomic.Int32
				conflicts atomic.Int32
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					next := loaded.Clone()
					next.Header().Status = domain.StatusValidated
					next.Header().ReferenceNumber = fmt.Sprintf("PT-%02d", i)
					err := repo.Save(ctx, next, expect)
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, ErrConflict):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			require.EqualValues(t, 1, wins.Load())
			require.EqualValues(t, writers-1, conflicts.Load())
		})
	}
}

func TestRepository_ReferenceNumberUnique(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)
			require.NoError(t, repo.Create(ctx, permit("gp-1", domain.StatusPendingSafetyReview, base, nil)))
			require.NoError(t, repo.Create(ctx, permit("gp-2", domain.StatusPendingSafetyReview, base, nil)))

			for _, id := range []string{"gp-1", "gp-2"} {
				rec, err := repo.Load(ctx, id)
				require.NoError(t, err)
				expect := Expect(rec)
				rec.Header().Status = domain.StatusValidated
				rec.Header().ReferenceNumber = "PT-2026-001"
				err = repo.Save(ctx, rec, expect)
				if id == "gp-1" {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, ErrDuplicate)
				}
			}
		})
	}
}

func TestRepository_ListAndExpirable(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			fixtures := []*domain.GeneralPermit{
				permit("a", domain.StatusValidated, base, at(time.Hour)),
				permit("b", domain.StatusInProgress, base.Add(time.Minute), at(2*time.Hour)),
				permit("c", domain.StatusValidated, base.Add(2*time.Minute), at(48*time.Hour)),
				permit("d", domain.StatusClosed, base.Add(3*time.Minute), at(time.Hour)),
				permit("e", domain.StatusDraft, base.Add(4*time.Minute), nil),
			}
			for _, f := range fixtures {
				if f.Status.HasReference() {
					f.ReferenceNumber = "REF-" + f.ID
				}
				require.NoError(t, repo.Create(ctx, f))
			}

			ids, err := repo.ListExpirable(ctx, base.Add(24*time.Hour), 10)
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, ids)

			ids, err = repo.ListExpirable(ctx, base.Add(24*time.Hour), 1)
			require.NoError(t, err)
			require.Equal(t, []string{"a"}, ids)

			page, total, err := repo.List(ctx, Filter{Status: domain.StatusValidated})
			require.NoError(t, err)
			require.Equal(t, 2, total)
			require.Equal(t, "c", page[0].Header().ID)

			page, total, err = repo.List(ctx, Filter{Kind: domain.KindGeneralPermit, Limit: 2, Offset: 1})
			require.NoError(t, err)
			require.Equal(t, 5, total)
			require.Len(t, page, 2)
			require.Equal(t, "d", page[0].Header().ID)

			require.NotPanics(t, func() {
				page, total, err = repo.List(ctx, Filter{Offset: -1, Limit: 1})
			})
			require.NoError(t, err)
			require.Equal(t, 5, total)
			require.Len(t, page, 1)
			require.Equal(t, "e", page[0].Header().ID)

			page, total, err = repo.List(ctx, Filter{Offset: 10})
			require.NoError(t, err)
			require.Equal(t, 5, total)
			require.Empty(t, page)

			page, total, err = repo.List(ctx, Filter{Kind: domain.KindHeightPermit})
			require.NoError(t, err)
			require.Zero(t, total)
			require.Empty(t, page)
		})
	}
}
