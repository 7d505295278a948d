package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/pkg/media"
	"github.com/short-video/short-video/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refs(name string) media.Refs {
	return media.Refs{
		VideoURL:     "http://media.local/" + name + ".mp4",
		VideoKey:     "videos/" + name + ".mp4",
		ThumbnailURL: "http://media.local/" + name + ".jpg",
		ThumbnailKey: "thumbnails/" + name + ".jpg",
	}
}

func upload(t *testing.T, e *env, userID uuid.UUID, name string) *UploadResult {
	t.Helper()
	result, err := e.videoSvc.CreateVideo(context.Background(), userID, name, refs(name))
	require.NoError(t, err)
	return result
}

func TestCreateVideoUnderQuota(t *testing.T) {
	e := newEnv(3)
	alice := e.addUser("alice")

	result, err := e.videoSvc.CreateVideo(context.Background(), alice.ID, "  first  ", refs("first"))
	require.NoError(t, err)
	assert.Nil(t, result.Evicted)
	assert.Equal(t, "first", result.Video.Caption)
	assert.Equal(t, "alice", result.Video.Author.Username)
	assert.Equal(t, "videos/first.mp4", result.Video.VideoKey)

	count, err := e.videos.CountByUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, e.publisher.ofType(queue.EventVideoCreated), 1)
}

func TestCreateVideoEvictsOldest(t *testing.T) {
	e := newEnv(3)
	ctx := context.Background()
	alice := e.addUser("alice")
	bob := e.addUser("bob")

	first := upload(t, e, alice.ID, "v1").Video
	upload(t, e, alice.ID, "v2")
	upload(t, e, alice.ID, "v3")

	require.NoError(t, e.likes.Insert(ctx, bob.ID, first.ID))
	e.addComment(first.ID, bob.ID, "hello", time.Now())

	result := upload(t, e, alice.ID, "v4")
	require.NotNil(t, result.Evicted)
	assert.Equal(t, first.ID, result.Evicted.ID)
	assert.Equal(t, "v1", result.Evicted.Caption)

	count, err := e.videos.CountByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	gone, err := e.videos.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, e.db.likes)
	assert.Empty(t, e.db.comments)

	assert.ElementsMatch(t, []string{"videos/v1.mp4", "thumbnails/v1.jpg"}, e.media.released)
	assert.Len(t, e.publisher.ofType(queue.EventVideoEvicted), 1)

	notices, err := e.userSvc.DrainNotices(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeVideoEvicted, notices[0].Type)
	assert.Equal(t, first.ID, notices[0].VideoID)

	// 提醒只返回一次
	notices, err = e.userSvc.DrainNotices(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestCreateVideoAtMaxPlusOne(t *testing.T) {
	e := newEnv(100)
	ctx := context.Background()
	alice := e.addUser("alice")

	oldest := e.addVideo(alice.ID, t0)
	for i := 1; i < 100; i++ {
		e.addVideo(alice.ID, t0.Add(time.Duration(i)*time.Minute))
	}

	result := upload(t, e, alice.ID, "new")
	require.NotNil(t, result.Evicted)
	assert.Equal(t, oldest.ID, result.Evicted.ID)

	count, err := e.videos.CountByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)

	stillThere, err := e.videos.GetByID(ctx, result.Video.ID)
	require.NoError(t, err)
	assert.NotNil(t, stillThere)
}

func TestCreateVideoEvictionTieBreaksOnID(t *testing.T) {
	e := newEnv(2)
	alice := e.addUser("alice")

	a := e.addVideo(alice.ID, t0)
	b := e.addVideo(alice.ID, t0)
	want := a.ID
	if idLess(b.ID, a.ID) {
		want = b.ID
	}

	result := upload(t, e, alice.ID, "new")
	require.NotNil(t, result.Evicted)
	assert.Equal(t, want, result.Evicted.ID)
}

func TestCreateVideoEvictsAtMostOne(t *testing.T) {
	e := newEnv(3)
	alice := e.addUser("alice")
	for i := 0; i < 5; i++ {
		e.addVideo(alice.ID, t0.Add(time.Duration(i)*time.Minute))
	}

	result := upload(t, e, alice.ID, "new")
	require.NotNil(t, result.Evicted)

	count, err := e.videos.CountByUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestCreateVideoOtherUsersUntouched(t *testing.T) {
	e := newEnv(1)
	alice := e.addUser("alice")
	bob := e.addUser("bob")
	bobs := e.addVideo(bob.ID, t0.Add(-time.Hour))

	upload(t, e, alice.ID, "a1")
	result := upload(t, e, alice.ID, "a2")
	require.NotNil(t, result.Evicted)
	assert.NotEqual(t, bobs.ID, result.Evicted.ID)

	kept, err := e.videos.GetByID(context.Background(), bobs.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestCreateVideoEvictionFailure(t *testing.T) {
	e := newEnv(1)
	alice := e.addUser("alice")
	upload(t, e, alice.ID, "v1")

	e.db.failDelete = true
	result, err := e.videoSvc.CreateVideo(context.Background(), alice.ID, "v2", refs("v2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEvictionFailed))
	assert.True(t, errors.Is(err, ErrDependencyFailure))

	require.NotNil(t, result)
	assert.Equal(t, "v2", result.Video.Caption)
	assert.Nil(t, result.Evicted)
	assert.NotEmpty(t, result.Warning)

	count, err := e.videos.CountByUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 下一次上传恢复后自然重试
	e.db.failDelete = false
	result = upload(t, e, alice.ID, "v3")
	require.NotNil(t, result.Evicted)
	assert.Equal(t, "v1", result.Evicted.Caption)
}

func TestCreateVideoMediaReleaseFailureIsNotFatal(t *testing.T) {
	e := newEnv(1)
	alice := e.addUser("alice")
	upload(t, e, alice.ID, "v1")

	e.media.fail = true
	result := upload(t, e, alice.ID, "v2")
	require.NotNil(t, result.Evicted)

	orphaned := e.publisher.ofType(queue.EventMediaOrphaned)
	require.Len(t, orphaned, 1)
	data, ok := orphaned[0].Data.(queue.MediaOrphanedData)
	require.True(t, ok)
	assert.Equal(t, 1, data.Attempt)
	assert.ElementsMatch(t, []string{"videos/v1.mp4", "thumbnails/v1.jpg"}, data.Keys)
}

func TestCreateVideoUnknownOwnerReleasesUpload(t *testing.T) {
	e := newEnv(3)

	_, err := e.videoSvc.CreateVideo(context.Background(), uuid.New(), "x", refs("x"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ElementsMatch(t, []string{"videos/x.mp4", "thumbnails/x.jpg"}, e.media.released)
	assert.Empty(t, e.db.videos)
}

func TestCreateVideoInsertFailure(t *testing.T) {
	e := newEnv(3)
	alice := e.addUser("alice")
	e.db.failCreate = true

	_, err := e.videoSvc.CreateVideo(context.Background(), alice.ID, "x", refs("x"))
	assert.True(t, errors.Is(err, ErrDependencyFailure))
	assert.False(t, errors.Is(err, ErrEvictionFailed))
	assert.Len(t, e.media.released, 2)
}

func TestDeleteVideo(t *testing.T) {
	e := newEnv(3)
	ctx := context.Background()
	alice := e.addUser("alice")
	bob := e.addUser("bob")
	video := upload(t, e, alice.ID, "mine").Video

	err := e.videoSvc.DeleteVideo(ctx, bob.ID, video.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	require.NoError(t, e.videoSvc.DeleteVideo(ctx, alice.ID, video.ID))
	assert.Len(t, e.publisher.ofType(queue.EventVideoDeleted), 1)
	assert.Contains(t, e.media.released, "videos/mine.mp4")

	err = e.videoSvc.DeleteVideo(ctx, alice.ID, video.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestQuotaHoldsAcrossManyUploads(t *testing.T) {
	e := newEnv(5)
	alice := e.addUser("alice")

	for i := 0; i < 20; i++ {
		result := upload(t, e, alice.ID, fmt.Sprintf("v%d", i))
		if i >= 5 {
			require.NotNil(t, result.Evicted, "upload %d", i)
			assert.Equal(t, fmt.Sprintf("v%d", i-5), result.Evicted.Caption)
		}
		count, err := e.videos.CountByUser(context.Background(), alice.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, int64(5))
	}
}
