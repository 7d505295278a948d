package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"github.com/short-video/short-video/internal/repository"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
	"github.com/short-video/short-video/pkg/queue"
)

var errBoom = errors.New("boom")

type pair [2]uuid.UUID

// memDB 内存版存储，行为对齐 internal/repository
type memDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	videos   map[uuid.UUID]models.Video
	likes    map[pair]time.Time
	follows  map[pair]time.Time
	comments map[uuid.UUID]models.Comment

	failDelete bool
	failCreate bool
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[uuid.UUID]models.User{},
		videos:   map[uuid.UUID]models.Video{},
		likes:    map[pair]time.Time{},
		follows:  map[pair]time.Time{},
		comments: map[uuid.UUID]models.Comment{},
	}
}

func idLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// newerFirst (created_at DESC, id DESC)
func newerFirst(at, bt time.Time, a, b uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return idLess(b, a)
}

type memUsers struct{ db *memDB }

func (s memUsers) Create(ctx context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.db.users[user.ID] = *user
	return nil
}

func (s memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s memUsers) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	result := map[uuid.UUID]*models.User{}
	for _, id := range ids {
		if u, ok := s.db.users[id]; ok {
			u := u
			result[id] = &u
		}
	}
	return result, nil
}

func (s memUsers) find(match func(models.User) bool) *models.User {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if match(u) {
			u := u
			return &u
		}
	}
	return nil
}

func (s memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Username == username }), nil
}

func (s memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == email }), nil
}

func (s memUsers) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.users[id]
	return ok, nil
}

func (s memUsers) Update(ctx context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.users[user.ID] = *user
	return nil
}

func (s memUsers) Search(ctx context.Context, query string, offset, limit int) ([]*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q := strings.ToLower(query)
	var found []*models.User
	for _, u := range s.db.users {
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			u := u
			found = append(found, &u)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Username < found[j].Username })
	return window(found, offset, limit), nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

type memVideos struct{ db *memDB }

func (s memVideos) Create(ctx context.Context, video *models.Video) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failCreate {
		return errBoom
	}
	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	s.db.videos[video.ID] = *video
	return nil
}

func (s memVideos) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	v, ok := s.db.videos[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s memVideos) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.videos[id]
	return ok, nil
}

func (s memVideos) sorted(match func(models.Video) bool) []*models.Video {
	var out []*models.Video
	for _, v := range s.db.videos {
		if match(v) {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

func (s memVideos) ListPage(ctx context.Context, after *models.Video, limit int) ([]*models.Video, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	all := s.sorted(func(v models.Video) bool {
		return after == nil || newerFirst(after.CreatedAt, v.CreatedAt, after.ID, v.ID)
	})
	return window(all, 0, limit), nil
}

func (s memVideos) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Video, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return window(s.sorted(func(v models.Video) bool { return v.UserID == userID }), offset, limit), nil
}

func (s memVideos) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, v := range s.db.videos {
		if v.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s memVideos) OldestByUser(ctx context.Context, userID, excludeID uuid.UUID) (*models.Video, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	owned := s.sorted(func(v models.Video) bool { return v.UserID == userID && v.ID != excludeID })
	if len(owned) == 0 {
		return nil, nil
	}
	return owned[len(owned)-1], nil
}

func (s memVideos) DeleteCascade(ctx context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failDelete {
		return false, errBoom
	}
	if _, ok := s.db.videos[id]; !ok {
		return false, nil
	}
	delete(s.db.videos, id)
	for k := range s.db.likes {
		if k[1] == id {
			delete(s.db.likes, k)
		}
	}
	for cid, c := range s.db.comments {
		if c.VideoID == id {
			delete(s.db.comments, cid)
		}
	}
	return true, nil
}

func (s memVideos) IncrementViews(ctx context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	v, ok := s.db.videos[id]
	if !ok {
		return false, nil
	}
	v.Views++
	s.db.videos[id] = v
	return true, nil
}

// memRelation 对应 likes / follows 表，pair 为主键
type memRelation struct {
	db   *memDB
	rows func(*memDB) map[pair]time.Time
}

func (s memRelation) Insert(ctx context.Context, actorID, targetID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	rows := s.rows(s.db)
	key := pair{actorID, targetID}
	if _, ok := rows[key]; ok {
		return repository.ErrDuplicate
	}
	rows[key] = time.Now()
	return nil
}

func (s memRelation) Remove(ctx context.Context, actorID, targetID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	rows := s.rows(s.db)
	key := pair{actorID, targetID}
	if _, ok := rows[key]; !ok {
		return false, nil
	}
	delete(rows, key)
	return true, nil
}

func (s memRelation) Exists(ctx context.Context, actorID, targetID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.rows(s.db)[pair{actorID, targetID}]
	return ok, nil
}

func (s memRelation) count(match func(pair) bool) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for k := range s.rows(s.db) {
		if match(k) {
			n++
		}
	}
	return n
}

type memLikes struct{ memRelation }

func newMemLikes(db *memDB) memLikes {
	return memLikes{memRelation{db: db, rows: func(d *memDB) map[pair]time.Time { return d.likes }}}
}

func (s memLikes) CountByVideoIDs(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := map[uuid.UUID]int64{}
	for _, id := range videoIDs {
		id := id
		if n := s.count(func(k pair) bool { return k[1] == id }); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

type memFollows struct{ memRelation }

func newMemFollows(db *memDB) memFollows {
	return memFollows{memRelation{db: db, rows: func(d *memDB) map[pair]time.Time { return d.follows }}}
}

func (s memFollows) CountFollowers(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.count(func(k pair) bool { return k[1] == userID }), nil
}

func (s memFollows) CountFollowing(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.count(func(k pair) bool { return k[0] == userID }), nil
}

type memComments struct{ db *memDB }

func (s memComments) Create(ctx context.Context, comment *models.Comment) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	s.db.comments[comment.ID] = *comment
	return nil
}

func (s memComments) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.comments[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s memComments) ListByVideo(ctx context.Context, videoID uuid.UUID, after *models.Comment, limit int) ([]*models.Comment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Comment
	for _, c := range s.db.comments {
		if c.VideoID != videoID {
			continue
		}
		if after != nil && !newerFirst(after.CreatedAt, c.CreatedAt, after.ID, c.ID) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return window(out, 0, limit), nil
}

func (s memComments) CountByVideoIDs(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	counts := map[uuid.UUID]int64{}
	for _, c := range s.db.comments {
		for _, id := range videoIDs {
			if c.VideoID == id {
				counts[id]++
			}
		}
	}
	return counts, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	if p.fail {
		return errBoom
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if event, ok := value.(queue.Event); ok {
		p.events = append(p.events, event)
	}
	return nil
}

func (p *recordingPublisher) ofType(t queue.EventType) []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingMedia struct {
	mu       sync.Mutex
	released []string
	fail     bool
	uploads  int
}

func (m *recordingMedia) Release(ctx context.Context, keys ...string) error {
	if m.fail {
		return errBoom
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, keys...)
	return nil
}

func (m *recordingMedia) UploadAvatar(ctx context.Context, ownerID uuid.UUID, up media.Upload) (string, string, error) {
	if _, _, err := media.AvatarPolicy(1024).Check(up); err != nil {
		return "", "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	key := "avatars/" + ownerID.String() + "/" + uuid.NewString() + ".png"
	return "http://media.local/" + key, key, nil
}

type memList struct {
	mu    sync.Mutex
	lists map[string][]string
}

func newMemList() *memList {
	return &memList{lists: map[string][]string{}}
}

func (l *memList) AppendJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := jsonString(value)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lists[key] = append(l.lists[key], data)
	return nil
}

func (l *memList) DrainList(ctx context.Context, key string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.lists[key]
	delete(l.lists, key)
	return items, nil
}

// stepClock 每次调用前进一秒
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// env 组装好的服务和存储
type env struct {
	db        *memDB
	users     memUsers
	videos    memVideos
	likes     memLikes
	follows   memFollows
	comments  memComments
	publisher *recordingPublisher
	media     *recordingMedia
	lists     *memList
	clock     *stepClock

	toggle     *ToggleService
	feed       *FeedService
	commentSvc *CommentService
	notices    *NoticeService
	videoSvc   *VideoService
	userSvc    *UserService
}

func newEnv(maxPerUser int) *env {
	db := newMemDB()
	e := &env{
		db:        db,
		users:     memUsers{db},
		videos:    memVideos{db},
		likes:     newMemLikes(db),
		follows:   newMemFollows(db),
		comments:  memComments{db},
		publisher: &recordingPublisher{},
		media:     &recordingMedia{},
		lists:     newMemList(),
		clock:     newStepClock(),
	}
	log := logger.NewNopLogger()

	e.toggle = NewToggleService(e.likes, e.follows, e.videos, e.users, e.publisher, log)
	e.feed = NewFeedService(e.videos, e.users, e.likes, e.comments, 20, log)
	e.commentSvc = NewCommentService(e.comments, e.videos, e.users, e.publisher, log)
	e.commentSvc.now = e.clock.Now
	e.notices = NewNoticeService(e.lists, time.Hour, log)
	e.videoSvc = NewVideoService(e.videos, e.users, e.media, e.notices, e.publisher, maxPerUser, log)
	e.videoSvc.now = e.clock.Now
	e.userSvc = NewUserService(e.users, e.follows, e.videos, e.feed, e.notices, e.media, e.publisher, log)
	return e
}

func (e *env) addUser(username string) *models.User {
	user := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "x",
		DisplayName: strings.ToUpper(username),
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		panic(err)
	}
	return user
}

// addVideo 直接写入存储，不经过配额检查
func (e *env) addVideo(owner uuid.UUID, createdAt time.Time) *models.Video {
	video := &models.Video{
		ID:        uuid.New(),
		UserID:    owner,
		Caption:   "seed",
		VideoURL:  "http://media.local/v.mp4",
		VideoKey:  "videos/" + uuid.NewString() + ".mp4",
		CreatedAt: createdAt,
	}
	if err := e.videos.Create(context.Background(), video); err != nil {
		panic(err)
	}
	return video
}

func (e *env) addComment(videoID, userID uuid.UUID, text string, createdAt time.Time) *models.Comment {
	comment := &models.Comment{VideoID: videoID, UserID: userID, Text: text, CreatedAt: createdAt}
	if err := e.comments.Create(context.Background(), comment); err != nil {
		panic(err)
	}
	return comment
}

func jsonString(value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
