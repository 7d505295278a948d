package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommentRejectsBlankText(t *testing.T) {
	e := newEnv(100)
	alice := e.addUser("alice")
	video := e.addVideo(alice.ID, t0)

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := e.commentSvc.CreateComment(context.Background(), alice.ID, video.ID, text)
		assert.True(t, errors.Is(err, ErrInvalidOperation), "text %q", text)
	}
	assert.Empty(t, e.db.comments)
}

func TestCreateCommentTrimsText(t *testing.T) {
	e := newEnv(100)
	alice := e.addUser("alice")
	video := e.addVideo(alice.ID, t0)

	comment, err := e.commentSvc.CreateComment(context.Background(), alice.ID, video.ID, "  great clip \n")
	require.NoError(t, err)
	assert.Equal(t, "great clip", comment.Text)
	assert.Equal(t, "alice", comment.Author.Username)
	assert.Len(t, e.publisher.ofType(queue.EventCommentCreated), 1)
}

func TestCreateCommentTooLong(t *testing.T) {
	e := newEnv(100)
	alice := e.addUser("alice")
	video := e.addVideo(alice.ID, t0)

	_, err := e.commentSvc.CreateComment(context.Background(), alice.ID, video.ID, strings.Repeat("a", maxCommentLength+1))
	assert.True(t, errors.Is(err, ErrInvalidOperation))
}

func TestCreateCommentMissingVideo(t *testing.T) {
	e := newEnv(100)
	alice := e.addUser("alice")

	_, err := e.commentSvc.CreateComment(context.Background(), alice.ID, uuid.New(), "hi")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListCommentsPaginates(t *testing.T) {
	e := newEnv(100)
	ctx := context.Background()
	alice := e.addUser("alice")
	video := e.addVideo(alice.ID, t0)
	other := e.addVideo(alice.ID, t0)

	for i := 0; i < 5; i++ {
		e.addComment(video.ID, alice.ID, fmt.Sprintf("c%d", i), t0.Add(time.Duration(i)*time.Second))
	}
	foreign := e.addComment(other.ID, alice.ID, "elsewhere", t0)

	first, err := e.commentSvc.ListComments(ctx, video.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "c4", first.Items[0].Text)

	second, err := e.commentSvc.ListComments(ctx, video.ID, first.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, second.Items, 3)
	assert.Equal(t, "c2", second.Items[0].Text)
	assert.Nil(t, second.NextCursor)

	_, err = e.commentSvc.ListComments(ctx, video.ID, &foreign.ID, 10)
	assert.True(t, errors.Is(err, ErrInvalidOperation))

	_, err = e.commentSvc.ListComments(ctx, uuid.New(), nil, 10)
	assert.True(t, errors.Is(err, ErrNotFound))
}
