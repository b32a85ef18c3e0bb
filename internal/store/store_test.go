package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webdevcody/youtube-video-suggestions/internal/apperr"
	"github.com/webdevcody/youtube-video-suggestions/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ideas-store-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() {
		os.Remove(f.Name())
		os.Remove(f.Name() + "-wal")
		os.Remove(f.Name() + "-shm")
	})

	db, err := Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func mustIdea(t *testing.T, db *DB, userID, title string) *models.Idea {
	t.Helper()
	idea, err := db.CreateIdea(context.Background(), NewIdea{UserID: userID, Title: title})
	require.NoError(t, err)
	return idea
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"ideas", "tags", "idea_tags", "upvotes", "tagging_quota"} {
		var n int
		require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM `+table).Scan(&n), table)
	}
	used, err := db.QuotaUsage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestCreateAndGetIdea(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	created, err := db.CreateIdea(ctx, NewIdea{UserID: "u1", Title: "Smart Garden Sensor", Description: strPtr("soil moisture")})
	require.NoError(t, err)
	assert.Empty(t, created.Tags)
	assert.False(t, created.Published)

	got, err := db.GetIdea(ctx, created.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Smart Garden Sensor", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "soil moisture", *got.Description)
	assert.Nil(t, got.YouTubeURL)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)

	_, err = db.GetIdea(ctx, "missing", "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpsertTags_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	first, err := db.UpsertTags(ctx, []string{" IoT ", "gardening", "iot"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "iot", first[0].Name)

	second, err := db.UpsertTags(ctx, []string{"iot", "gardening"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM tags`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestAttachTags_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	idea := mustIdea(t, db, "u1", "Idea")

	tags, err := db.UpsertTags(ctx, []string{"go", "sqlite"})
	require.NoError(t, err)
	ids := []string{tags[0].ID, tags[1].ID}

	require.NoError(t, db.AttachTags(ctx, idea.ID, ids))
	require.NoError(t, db.AttachTags(ctx, idea.ID, ids))

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM idea_tags WHERE idea_id = ?`, idea.ID).Scan(&n))
	assert.Equal(t, 2, n)

	got, err := db.IdeaTags(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Tag{tags[0], tags[1]}, got)
}

func TestUpsertTags_ConcurrentSameName(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	a := mustIdea(t, db, "u1", "A")
	b := mustIdea(t, db, "u2", "B")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, ideaID := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(ideaID string) {
			defer wg.Done()
			tags, err := db.UpsertTags(ctx, []string{"ai"})
			if err != nil {
				errs <- err
				return
			}
			errs <- db.AttachTags(ctx, ideaID, []string{tags[0].ID})
		}(ideaID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM tags WHERE name = 'ai'`).Scan(&n))
	assert.Equal(t, 1, n)

	counts, err := db.ListTagCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TagCount{{Name: "ai", Count: 2}}, counts)
}

func TestListIdeas_OrderAndFilters(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	banana := mustIdea(t, db, "u1", "banana bread")
	apple := mustIdea(t, db, "u1", "Apple pie")
	cherry, err := db.CreateIdea(ctx, NewIdea{UserID: "u2", Title: "cherry", Description: strPtr("A Rust tutorial")})
	require.NoError(t, err)

	require.NoError(t, db.AddUpvote(ctx, "u3", cherry.ID))
	require.NoError(t, db.AddUpvote(ctx, "u4", cherry.ID))
	require.NoError(t, db.AddUpvote(ctx, "u3", banana.ID))

	all, err := db.ListIdeas(ctx, "u3", models.IdeaFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{cherry.ID, banana.ID, apple.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 2, all[0].UpvoteCount)
	assert.True(t, all[0].Upvoted)
	assert.False(t, all[2].Upvoted)

	found, err := db.ListIdeas(ctx, "", models.IdeaFilter{Query: "rust"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, cherry.ID, found[0].ID)

	require.NoError(t, db.UpdateIdeaStatus(ctx, apple.ID, true, strPtr("https://youtu.be/x")))
	published := true
	pub, err := db.ListIdeas(ctx, "", models.IdeaFilter{Published: &published})
	require.NoError(t, err)
	require.Len(t, pub, 1)
	require.NotNil(t, pub[0].YouTubeURL)
	assert.Equal(t, "https://youtu.be/x", *pub[0].YouTubeURL)

	counts, err := db.CountIdeas(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IdeaCounts{Fresh: 2, Published: 1}, counts)
}

func TestListIdeas_QueryFoldsNonASCII(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	ecole := mustIdea(t, db, "u1", "ÉCOLE de Go")
	_, err := db.CreateIdea(ctx, NewIdea{UserID: "u1", Title: "plain", Description: strPtr("Über Straße")})
	require.NoError(t, err)

	got, err := db.ListIdeas(ctx, "", models.IdeaFilter{Query: "école"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ecole.ID, got[0].ID)

	got, err = db.ListIdeas(ctx, "", models.IdeaFilter{Query: "ÜBER"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "plain", got[0].Title)
}

func TestListIdeas_TagFilterRequiresAll(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	both := mustIdea(t, db, "u1", "both")
	one := mustIdea(t, db, "u1", "one")

	tags, err := db.UpsertTags(ctx, []string{"go", "web"})
	require.NoError(t, err)
	require.NoError(t, db.AttachTags(ctx, both.ID, []string{tags[0].ID, tags[1].ID}))
	require.NoError(t, db.AttachTags(ctx, one.ID, []string{tags[0].ID}))

	got, err := db.ListIdeas(ctx, "", models.IdeaFilter{Tags: []string{"go", "WEB"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, both.ID, got[0].ID)
	assert.Len(t, got[0].Tags, 2)

	got, err = db.ListIdeas(ctx, "", models.IdeaFilter{Tags: []string{"go"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdateIdeaStatus_ClearsURL(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	idea := mustIdea(t, db, "u1", "x")

	require.NoError(t, db.UpdateIdeaStatus(ctx, idea.ID, true, strPtr("https://youtu.be/a")))
	require.NoError(t, db.UpdateIdeaStatus(ctx, idea.ID, true, nil))
	got, err := db.GetIdea(ctx, idea.ID, "")
	require.NoError(t, err)
	require.NotNil(t, got.YouTubeURL)

	require.NoError(t, db.UpdateIdeaStatus(ctx, idea.ID, false, strPtr("")))
	got, err = db.GetIdea(ctx, idea.ID, "")
	require.NoError(t, err)
	assert.Nil(t, got.YouTubeURL)
	assert.False(t, got.Published)

	err = db.UpdateIdeaStatus(ctx, "missing", true, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteIdea_Cascades(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	idea := mustIdea(t, db, "u1", "doomed")
	tags, err := db.UpsertTags(ctx, []string{"go"})
	require.NoError(t, err)
	require.NoError(t, db.AttachTags(ctx, idea.ID, []string{tags[0].ID}))
	require.NoError(t, db.AddUpvote(ctx, "u2", idea.ID))

	require.NoError(t, db.DeleteIdea(ctx, idea.ID))
	assert.True(t, errors.Is(db.DeleteIdea(ctx, idea.ID), apperr.ErrNotFound))

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM idea_tags`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM upvotes`).Scan(&n))
	assert.Zero(t, n)
}

func TestUpvotes_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	idea := mustIdea(t, db, "u1", "x")

	require.NoError(t, db.AddUpvote(ctx, "u2", idea.ID))
	require.NoError(t, db.AddUpvote(ctx, "u2", idea.ID))
	ids, err := db.UserUpvotes(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{idea.ID}, ids)

	require.NoError(t, db.RemoveUpvote(ctx, "u2", idea.ID))
	require.NoError(t, db.RemoveUpvote(ctx, "u2", idea.ID))
	ids, err = db.UserUpvotes(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.True(t, errors.Is(db.AddUpvote(ctx, "u2", "missing"), apperr.ErrNotFound))
}

func TestDeleteTagsByName(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	idea := mustIdea(t, db, "u1", "x")
	tags, err := db.UpsertTags(ctx, []string{"go", "rust", "zig"})
	require.NoError(t, err)
	require.NoError(t, db.AttachTags(ctx, idea.ID, []string{tags[0].ID, tags[1].ID}))

	deleted, err := db.DeleteTagsByName(ctx, []string{"Rust", "go", "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, deleted)

	left, err := db.IdeaTags(ctx, idea.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	none, err := db.DeleteTagsByName(ctx, []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQuota_ReserveRespectsCeiling(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.ReserveQuota(ctx, 3)
			if err == nil && ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, granted)

	used, err := db.QuotaUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, used)

	require.NoError(t, db.ReleaseQuota(ctx))
	used, _ = db.QuotaUsage(ctx)
	assert.Equal(t, 2, used)

	require.NoError(t, db.ResetQuota(ctx))
	require.NoError(t, db.ReleaseQuota(ctx))
	used, _ = db.QuotaUsage(ctx)
	assert.Zero(t, used)
}
