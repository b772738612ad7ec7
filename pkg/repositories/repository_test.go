package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Owner  string   `json:"owner"`
	Status string   `json:"status"`
	Tags   []string `json:"tags,omitempty"`
	Nested struct {
		Level int `json:"level"`
	} `json:"nested"`
}

type entryStatus string

type backend struct {
	name string
	open func(t *testing.T, opts Options) Repository
}

func backends(t *testing.T) []backend {
	bs := []backend{
		{
			name: "memory",
			open: func(t *testing.T, opts Options) Repository {
				return NewMemoryRepository(opts)
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T, opts Options) Repository {
				path := filepath.Join(t.TempDir(), "test.db")
				repo, err := NewSQLiteRepository(context.Background(), path, "../../migrations/sqlite", opts)
				require.NoError(t, err)
				return repo
			},
		},
	}
	if url := os.Getenv("SKATEHUBBA_TEST_POSTGRES_URL"); url != "" {
		bs = append(bs, backend{
			name: "postgres",
			open: func(t *testing.T, opts Options) Repository {
				repo, err := NewPostgresRepository(context.Background(), url, "../../migrations/postgres", opts)
				require.NoError(t, err)
				_, err = repo.pool.Exec(context.Background(), "TRUNCATE documents")
				require.NoError(t, err)
				return repo
			},
		})
	}
	if url := os.Getenv("SKATEHUBBA_TEST_REDIS_URL"); url != "" {
		bs = append(bs, backend{
			name: "redis",
			open: func(t *testing.T, opts Options) Repository {
				redisOpts, err := redis.ParseURL(url)
				require.NoError(t, err)
				client := redis.NewClient(redisOpts)
				require.NoError(t, client.FlushDB(context.Background()).Err())
				return NewRedisRepositoryFromClient(client, opts)
			},
		})
	}
	return bs
}

func TestRepository_CRUD(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			repo := b.open(t, Options{})
			defer repo.Close(ctx)

			_, err := repo.Get(ctx, "things", "a")
			assert.True(t, IsNotFound(err))

			err = repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Create(ctx, "things", "a", entry{Owner: "alice", Status: "WAITING"})
			})
			require.NoError(t, err)

			doc, err := repo.Get(ctx, "things", "a")
			require.NoError(t, err)
			assert.Equal(t, int64(1), doc.Version)
			got, err := Decode[entry](doc)
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Owner)

			err = repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Create(ctx, "things", "a", entry{Owner: "bob"})
			})
			assert.True(t, IsAlreadyExists(err))

			err = repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				doc, err := tx.Get(ctx, "things", "a")
				if err != nil {
					return err
				}
				e, err := Decode[entry](doc)
				if err != nil {
					return err
				}
				e.Status = "MATCHED"
				return tx.Set(ctx, "things", "a", e)
			})
			require.NoError(t, err)

			doc, err = repo.Get(ctx, "things", "a")
			require.NoError(t, err)
			assert.Equal(t, int64(2), doc.Version)
			assert.False(t, doc.UpdatedAt.Before(doc.CreatedAt))

			err = repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				if err := tx.Delete(ctx, "things", "a"); err != nil {
					return err
				}
				return tx.Delete(ctx, "things", "missing")
			})
			require.NoError(t, err)
			_, err = repo.Get(ctx, "things", "a")
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestRepository_Query(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			repo := b.open(t, Options{})
			defer repo.Close(ctx)

			seed := []struct {
				id string
				e  entry
			}{
				{"q1", entry{Owner: "alice", Status: "WAITING", Tags: []string{"x"}}},
				{"q2", entry{Owner: "bob", Status: "WAITING", Tags: []string{"x", "y"}}},
				{"q3", entry{Owner: "carol", Status: "MATCHED"}},
				{"q4", entry{Owner: "dave", Status: "WAITING"}},
			}
			for _, s := range seed {
				s := s
				s.e.Nested.Level = len(s.e.Tags)
				require.NoError(t, repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
					return tx.Create(ctx, "queue", s.id, s.e)
				}))
				time.Sleep(2 * time.Millisecond)
			}

			tests := []struct {
				name string
				q    Query
				want []string
			}{
				{
					name: "all oldest first",
					q:    Query{Collection: "queue"},
					want: []string{"q1", "q2", "q3", "q4"},
				},
				{
					name: "equality with limit",
					q:    Query{Collection: "queue", Where: []Filter{{Field: "status", Op: OpEqual, Value: "WAITING"}}, Limit: 2},
					want: []string{"q1", "q2"},
				},
				{
					name: "array contains",
					q:    Query{Collection: "queue", Where: []Filter{{Field: "tags", Op: OpArrayContains, Value: "y"}}},
					want: []string{"q2"},
				},
				{
					name: "nested numeric path",
					q:    Query{Collection: "queue", Where: []Filter{{Field: "nested.level", Op: OpEqual, Value: 1}}},
					want: []string{"q1"},
				},
				{
					name: "named string value",
					q:    Query{Collection: "queue", Where: []Filter{{Field: "status", Op: OpEqual, Value: entryStatus("MATCHED")}}, Limit: 1},
					want: []string{"q3"},
				},
				{
					name: "limit counts matching documents only",
					q:    Query{Collection: "queue", Where: []Filter{{Field: "tags", Op: OpArrayContains, Value: "y"}}, Limit: 1},
					want: []string{"q2"},
				},
				{
					name: "numeric filter alongside string filter with limit",
					q: Query{Collection: "queue", Where: []Filter{
						{Field: "status", Op: OpEqual, Value: "WAITING"},
						{Field: "nested.level", Op: OpEqual, Value: 0},
					}, Limit: 1},
					want: []string{"q4"},
				},
				{
					name: "no match",
					q:    Query{Collection: "queue", Where: []Filter{{Field: "owner", Op: OpEqual, Value: "zed"}}},
					want: []string{},
				},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					docs, err := repo.Query(ctx, tt.q)
					require.NoError(t, err)
					ids := make([]string, 0, len(docs))
					for _, d := range docs {
						ids = append(ids, d.ID)
					}
					assert.Equal(t, tt.want, ids)
				})
			}
		})
	}
}

func TestRepository_TransactionSeesOwnWrites(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			repo := b.open(t, Options{})
			defer repo.Close(ctx)

			err := repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				if err := tx.Create(ctx, "things", "x", entry{Owner: "alice", Status: "WAITING"}); err != nil {
					return err
				}
				docs, err := tx.Query(ctx, Query{Collection: "things", Where: []Filter{{Field: "owner", Op: OpEqual, Value: "alice"}}})
				if err != nil {
					return err
				}
				if len(docs) != 1 {
					return fmt.Errorf("expected own write in query, got %d", len(docs))
				}
				if err := tx.Delete(ctx, "things", "x"); err != nil {
					return err
				}
				_, err = tx.Get(ctx, "things", "x")
				if !IsNotFound(err) {
					return fmt.Errorf("expected not found after delete, got %v", err)
				}
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestRepository_TransactionQueryLimit(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			repo := b.open(t, Options{})
			defer repo.Close(ctx)

			for _, id := range []string{"a", "b", "c"} {
				id := id
				require.NoError(t, repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
					return tx.Create(ctx, "queue", id, entry{Owner: id, Status: "WAITING"})
				}))
				time.Sleep(2 * time.Millisecond)
			}

			waiting := Query{Collection: "queue", Where: []Filter{{Field: "status", Op: OpEqual, Value: "WAITING"}}, Limit: 2}
			var got [][]string
			err := repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				got = nil
				if err := tx.Set(ctx, "queue", "a", entry{Owner: "a", Status: "MATCHED"}); err != nil {
					return err
				}
				if err := tx.Delete(ctx, "queue", "b"); err != nil {
					return err
				}
				if err := tx.Create(ctx, "queue", "d", entry{Owner: "d", Status: "WAITING"}); err != nil {
					return err
				}
				docs, err := tx.Query(ctx, waiting)
				if err != nil {
					return err
				}
				ids := []string{}
				for _, d := range docs {
					ids = append(ids, d.ID)
				}
				got = append(got, ids)
				return nil
			})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, []string{"c", "d"}, got[0])

			docs, err := repo.Query(ctx, waiting)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "c", docs[0].ID)
			assert.Equal(t, "d", docs[1].ID)
		})
	}
}

func TestBuildScan(t *testing.T) {
	q := Query{
		Collection: "remote_games",
		Where: []Filter{
			{Field: "status", Op: OpEqual, Value: entryStatus("waiting")},
			{Field: "players", Op: OpArrayContains, Value: "alice"},
		},
		Limit: 20,
	}

	tests := []struct {
		name     string
		stmts    statements
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:  "sqlite",
			stmts: sqliteStatements,
			wantSQL: sqliteStatements.scan +
				" AND json_extract(data, ?) = ?" +
				" AND EXISTS (SELECT 1 FROM json_each(data, ?) WHERE json_each.value = ?)" +
				" ORDER BY created_at, id LIMIT ?",
			wantArgs: []interface{}{"remote_games", "$.status", "waiting", "$.players", "alice", 20},
		},
		{
			name:  "postgres",
			stmts: postgresStatements,
			wantSQL: postgresStatements.scan +
				" AND data #>> $2::text[] = $3::text" +
				" AND data #> $4::text[] @> jsonb_build_array($5::text)" +
				" ORDER BY created_at, id LIMIT $6",
			wantArgs: []interface{}{"remote_games", []string{"status"}, "waiting", []string{"players"}, "alice", 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildScan(tt.stmts, q)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}

	t.Run("limit stays in Go when a filter is not pushed down", func(t *testing.T) {
		sql, args := buildScan(sqliteStatements, Query{
			Collection: "queue",
			Where:      []Filter{{Field: "nested.level", Op: OpEqual, Value: 1}},
			Limit:      1,
		})
		assert.Equal(t, sqliteStatements.scan+" ORDER BY created_at, id", sql)
		assert.Equal(t, []interface{}{"queue"}, args)
	})
}

func TestRepository_AbortedTransactionWritesNothing(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			var changes []Change
			repo := b.open(t, Options{OnCommit: func(ctx context.Context, c []Change) {
				changes = append(changes, c...)
			}})
			defer repo.Close(ctx)

			boom := errors.New("boom")
			err := repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				if err := tx.Create(ctx, "things", "y", entry{Owner: "alice"}); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			_, err = repo.Get(ctx, "things", "y")
			assert.True(t, IsNotFound(err))
			assert.Empty(t, changes)
		})
	}
}

func TestRepository_OnCommit(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			var changes []Change
			repo := b.open(t, Options{OnCommit: func(ctx context.Context, c []Change) {
				changes = append(changes, c...)
			}})
			defer repo.Close(ctx)

			require.NoError(t, repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				if err := tx.Create(ctx, "things", "a", entry{Owner: "alice"}); err != nil {
					return err
				}
				return tx.Create(ctx, "things", "b", entry{Owner: "bob"})
			}))
			require.NoError(t, repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Delete(ctx, "things", "a")
			}))

			require.Len(t, changes, 3)
			assert.Equal(t, "a", changes[0].ID)
			assert.False(t, changes[0].Deleted)
			require.NotNil(t, changes[1].Document)
			assert.Equal(t, int64(1), changes[1].Document.Version)
			assert.Equal(t, "a", changes[2].ID)
			assert.True(t, changes[2].Deleted)
			assert.Nil(t, changes[2].Document)
		})
	}
}

func TestRepository_ConcurrentIncrements(t *testing.T) {
	type counter struct {
		N int `json:"n"`
	}
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			repo := b.open(t, Options{MaxAttempts: 100})
			defer repo.Close(ctx)

			id := uuid.NewString()
			require.NoError(t, repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Create(ctx, "counters", id, counter{})
			}))

			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- repo.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
						doc, err := tx.Get(ctx, "counters", id)
						if err != nil {
							return err
						}
						c, err := Decode[counter](doc)
						if err != nil {
							return err
						}
						c.N++
						return tx.Set(ctx, "counters", id, c)
					})
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			doc, err := repo.Get(ctx, "counters", id)
			require.NoError(t, err)
			c, err := Decode[counter](doc)
			require.NoError(t, err)
			assert.Equal(t, workers, c.N)
			assert.Equal(t, int64(workers+1), doc.Version)
		})
	}
}

func TestFilterDocuments_UnsupportedOperator(t *testing.T) {
	_, err := filterDocuments(Query{Collection: "c", Where: []Filter{{Field: "a", Op: ">", Value: 1}}}, nil)
	assert.Error(t, err)
}
