package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/notify"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/queue"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/uploads"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotification struct {
	uid string
	n   notify.Notification
}

type recordingNotifier struct {
	lock sync.Mutex
	sent []sentNotification
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, uid string, n notify.Notification) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentNotification{uid: uid, n: n})
	return nil
}

func (r *recordingNotifier) recipients() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	var uids []string
	for _, s := range r.sent {
		uids = append(uids, s.uid)
	}
	return uids
}

type fixedSource uint32

func (s fixedSource) Uint32() (uint32, error) {
	return uint32(s), nil
}

type fixture struct {
	svc      *Service
	repo     repositories.Repository
	jobs     *queue.InMemoryQueue[uploads.Job]
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	broker := watch.NewMemoryBroker()
	repo := repositories.NewMemoryRepository(repositories.Options{
		OnCommit: func(ctx context.Context, changes []repositories.Change) {
			broker.Publish(ctx, changes)
		},
	})
	f := &fixture{
		repo:     repo,
		jobs:     queue.NewInMemoryQueue[uploads.Job](4),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(NewServiceOptions{
		Repository:       repo,
		Broker:           broker,
		Notifier:         f.notifier,
		Jobs:             f.jobs,
		SpoolDir:         t.TempDir(),
		MaxVideoBytes:    16,
		MaxVideoDuration: 30 * time.Second,
		Random:           fixedSource(0),
	})
	return f
}

// activeGame returns a game where alice is playerA and bob playerB.
func (f *fixture) activeGame(t *testing.T) *GameView {
	t.Helper()
	ctx := context.Background()
	created, err := f.svc.Create(ctx, "alice")
	require.NoError(t, err)
	view, err := f.svc.Join(ctx, "bob", created.Game.ID)
	require.NoError(t, err)
	return view
}

func (f *fixture) upload(t *testing.T, caller, gameID string, role types.VideoRole) *types.RemoteVideo {
	t.Helper()
	v, err := f.svc.UploadVideo(context.Background(), caller, UploadRequest{
		GameID:      gameID,
		Role:        role,
		ContentType: "video/mp4",
		DurationMs:  4000,
		Body:        strings.NewReader("clip-bytes"),
	})
	require.NoError(t, err)
	return v
}

// playRound drives one round through uploads and claims.
func (f *fixture) playRound(t *testing.T, gameID, offense, defense string, claim, confirm types.RoundResult) (*GameView, bool) {
	t.Helper()
	ctx := context.Background()
	set := f.upload(t, offense, gameID, types.VideoRoleSet)
	f.jobs.Drain()
	_, err := f.svc.CompleteVideo(ctx, set.ID, "https://cdn.example.com/"+set.StoragePath)
	require.NoError(t, err)
	reply := f.upload(t, defense, gameID, types.VideoRoleReply)
	f.jobs.Drain()
	_, err = f.svc.CompleteVideo(ctx, reply.ID, "https://cdn.example.com/"+reply.StoragePath)
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, offense, gameID, claim)
	require.NoError(t, err)
	view, disputed, err := f.svc.Confirm(ctx, defense, gameID, confirm)
	require.NoError(t, err)
	return view, disputed
}

func TestCreateAndJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RemoteGameWaiting, created.Game.Status)
	assert.Equal(t, "alice", created.Game.CurrentTurnUID)
	assert.Nil(t, created.Round)

	_, err = f.svc.Join(ctx, "alice", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodeIllegalTransition))

	view, err := f.svc.Join(ctx, "bob", created.Game.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteGameActive, view.Game.Status)
	assert.Equal(t, "bob", view.Game.PlayerBUID)
	assert.Equal(t, "bob", view.Game.PlayerBName)
	require.NotNil(t, view.Round)
	assert.Equal(t, 1, view.Round.Number)
	assert.Equal(t, types.RoundAwaitingSet, view.Round.Status)
	assert.Equal(t, "alice", view.Round.OffenseUID)
	assert.Equal(t, "bob", view.Round.DefenseUID)
	assert.Equal(t, []string{"alice"}, f.notifier.recipients())

	_, err = f.svc.Join(ctx, "carol", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodeConflict))

	_, err = f.svc.Get(ctx, "carol", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodePermissionDenied))

	_, err = f.svc.Join(ctx, "bob", "missing")
	assert.True(t, game.IsCode(err, game.CodeNotFound))
}

func TestRoundThroughUploadPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID

	set := f.upload(t, "alice", gameID, types.VideoRoleSet)
	assert.Equal(t, types.VideoUploading, set.Status)
	assert.Equal(t, int64(len("clip-bytes")), set.SizeBytes)
	assert.True(t, strings.HasSuffix(set.StoragePath, ".mp4"))
	require.Equal(t, 1, f.jobs.Size())

	job, err := f.jobs.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, set.ID, job.VideoID)
	assert.Equal(t, set.StoragePath, job.Key)
	assert.FileExists(t, job.Path)

	view, err := f.svc.Get(ctx, "alice", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RoundAwaitingSet, view.Round.Status, "round waits for the upload")

	require.NoError(t, f.svc.RecordProgress(ctx, set.ID, 4))
	require.NoError(t, f.svc.RecordProgress(ctx, set.ID, 2))
	got, err := f.svc.GetVideo(ctx, "bob", gameID, set.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.BytesUploaded)

	ready, err := f.svc.CompleteVideo(ctx, set.ID, "https://cdn.example.com/set.mp4")
	require.NoError(t, err)
	assert.Equal(t, types.VideoReady, ready.Status)
	assert.Equal(t, ready.SizeBytes, ready.BytesUploaded)

	view, err = f.svc.Get(ctx, "alice", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RoundAwaitingReply, view.Round.Status)
	assert.Equal(t, set.ID, view.Round.SetVideoID)
	assert.Equal(t, "bob", view.Game.CurrentTurnUID)
	assert.Contains(t, f.notifier.recipients(), "bob")

	reply := f.upload(t, "bob", gameID, types.VideoRoleReply)
	_, err = f.svc.CompleteVideo(ctx, reply.ID, "https://cdn.example.com/reply.mp4")
	require.NoError(t, err)
	view, err = f.svc.Get(ctx, "bob", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RoundAwaitingConfirmation, view.Round.Status)
	assert.Equal(t, "alice", view.Game.CurrentTurnUID)

	_, err = f.svc.Resolve(ctx, "alice", gameID, types.ResultMissed)
	require.NoError(t, err)
	view, disputed, err := f.svc.Confirm(ctx, "bob", gameID, types.ResultMissed)
	require.NoError(t, err)
	assert.False(t, disputed)
	assert.Equal(t, "S", view.Game.PlayerBLetters)
	assert.Equal(t, "", view.Game.PlayerALetters)
	assert.Equal(t, 2, view.Round.Number)
	assert.Equal(t, types.RoundAwaitingSet, view.Round.Status)
	assert.Equal(t, "alice", view.Round.OffenseUID)

	doc, err := f.repo.Get(ctx, types.RemoteRoundsCollection, ready.RoundID)
	require.NoError(t, err)
	first, err := repositories.Decode[types.RemoteRound](doc)
	require.NoError(t, err)
	assert.Equal(t, types.RoundResolved, first.Status)
	assert.Equal(t, types.ResultMissed, first.Result)
	assert.NotNil(t, first.ResolvedAt)
}

func TestResolveAndConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID

	_, _, err := f.svc.Confirm(ctx, "bob", gameID, types.ResultMissed)
	assert.True(t, game.IsCode(err, game.CodeIllegalTransition), "nothing to confirm yet")

	set := f.upload(t, "alice", gameID, types.VideoRoleSet)
	_, err = f.svc.CompleteVideo(ctx, set.ID, "u")
	require.NoError(t, err)
	reply := f.upload(t, "bob", gameID, types.VideoRoleReply)
	_, err = f.svc.CompleteVideo(ctx, reply.ID, "u")
	require.NoError(t, err)

	_, _, err = f.svc.Confirm(ctx, "bob", gameID, types.ResultMissed)
	assert.True(t, game.IsCode(err, game.CodeIllegalTransition), "confirm before claim")
	_, err = f.svc.Resolve(ctx, "bob", gameID, types.ResultMissed)
	assert.True(t, game.IsCode(err, game.CodePermissionDenied))
	_, err = f.svc.Resolve(ctx, "alice", gameID, "maybe")
	assert.True(t, game.IsCode(err, game.CodeInvalidArgument))

	_, err = f.svc.Resolve(ctx, "alice", gameID, types.ResultLanded)
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, "alice", gameID, types.ResultMissed)
	assert.True(t, game.IsCode(err, game.CodeConflict))

	view, disputed, err := f.svc.Confirm(ctx, "bob", gameID, types.ResultMissed)
	require.NoError(t, err)
	assert.True(t, disputed)
	assert.Equal(t, types.RoundDisputed, view.Round.Status)
	assert.Equal(t, "", view.Game.PlayerBLetters)

	_, _, err = f.svc.Confirm(ctx, "bob", gameID, types.ResultLanded)
	assert.True(t, game.IsCode(err, game.CodeConflict))

	_, err = f.svc.Adjudicate(ctx, "bob", false, gameID, types.ResultLanded)
	assert.True(t, game.IsCode(err, game.CodePermissionDenied))

	view, err = f.svc.Adjudicate(ctx, "mod", true, gameID, types.ResultMissed)
	require.NoError(t, err)
	assert.Equal(t, "S", view.Game.PlayerBLetters)
	assert.Equal(t, 2, view.Round.Number)

	doc, err := f.repo.Get(ctx, types.RemoteRoundsCollection, set.RoundID)
	require.NoError(t, err)
	settled, err := repositories.Decode[types.RemoteRound](doc)
	require.NoError(t, err)
	assert.Equal(t, "mod", settled.AdjudicatedBy)
	assert.Equal(t, types.RoundResolved, settled.Status)
}

func TestFiveMissesCompleteTheGame(t *testing.T) {
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID

	var view *GameView
	for i := 0; i < game.MaxLetters; i++ {
		view, _ = f.playRound(t, gameID, "alice", "bob", types.ResultMissed, types.ResultMissed)
	}
	assert.Equal(t, types.RemoteGameComplete, view.Game.Status)
	assert.Equal(t, "alice", view.Game.WinnerUID)
	assert.Equal(t, "SKATE", view.Game.PlayerBLetters)

	_, err := f.svc.UploadVideo(context.Background(), "alice", UploadRequest{
		GameID: gameID, Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000, Body: strings.NewReader("x"),
	})
	assert.True(t, game.IsCode(err, game.CodeIllegalTransition))
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID

	tests := []struct {
		name   string
		caller string
		req    UploadRequest
		code   game.Code
	}{
		{name: "unknown role", caller: "alice", req: UploadRequest{Role: "trailer", ContentType: "video/mp4", DurationMs: 1000}, code: game.CodeInvalidArgument},
		{name: "not a video", caller: "alice", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "image/png", DurationMs: 1000}, code: game.CodeInvalidArgument},
		{name: "missing duration", caller: "alice", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "video/mp4"}, code: game.CodeInvalidArgument},
		{name: "too long", caller: "alice", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 31000}, code: game.CodeInvalidArgument},
		{name: "too large", caller: "alice", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000, Body: strings.NewReader(strings.Repeat("x", 17))}, code: game.CodeInvalidArgument},
		{name: "empty", caller: "alice", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000, Body: strings.NewReader("")}, code: game.CodeInvalidArgument},
		{name: "defense uploads set", caller: "bob", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000}, code: game.CodePermissionDenied},
		{name: "reply before set", caller: "bob", req: UploadRequest{Role: types.VideoRoleReply, ContentType: "video/mp4", DurationMs: 1000}, code: game.CodeIllegalTransition},
		{name: "outsider", caller: "carol", req: UploadRequest{Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000}, code: game.CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.GameID = gameID
			if tt.req.Body == nil {
				tt.req.Body = strings.NewReader("clip")
			}
			_, err := f.svc.UploadVideo(context.Background(), tt.caller, tt.req)
			assert.Equal(t, tt.code, game.CodeOf(err), "%v", err)
			assert.Equal(t, 0, f.jobs.Size())
		})
	}
}

func TestUploadSupersedesFailedVideo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID

	first := f.upload(t, "alice", gameID, types.VideoRoleSet)
	_, err := f.svc.UploadVideo(ctx, "alice", UploadRequest{
		GameID: gameID, Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000, Body: strings.NewReader("again"),
	})
	assert.True(t, game.IsCode(err, game.CodeConflict), "upload already in flight")

	require.NoError(t, f.svc.FailVideo(ctx, first.ID, VideoErrorUploadFailed, "connection reset"))
	failed, err := f.svc.GetVideo(ctx, "alice", gameID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.VideoFailed, failed.Status)
	assert.Equal(t, VideoErrorUploadFailed, failed.ErrorCode)

	view, err := f.svc.Get(ctx, "alice", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RoundAwaitingSet, view.Round.Status, "failure leaves the round alone")

	// A late completion of the failed upload is ignored.
	_, err = f.svc.CompleteVideo(ctx, first.ID, "u")
	require.NoError(t, err)
	view, err = f.svc.Get(ctx, "alice", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RoundAwaitingSet, view.Round.Status)

	second := f.upload(t, "alice", gameID, types.VideoRoleSet)
	_, err = f.svc.CompleteVideo(ctx, second.ID, "u")
	require.NoError(t, err)
	view, err = f.svc.Get(ctx, "alice", gameID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, view.Round.SetVideoID)
}

func TestUploadQueueFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID
	for i := 0; i < 4; i++ {
		require.NoError(t, f.jobs.Enqueue(uploads.Job{}))
	}

	_, err := f.svc.UploadVideo(ctx, "alice", UploadRequest{
		GameID: gameID, Role: types.VideoRoleSet, ContentType: "video/mp4", DurationMs: 1000, Body: strings.NewReader("clip"),
	})
	assert.True(t, game.IsCode(err, game.CodeUnavailable))

	docs, err := f.repo.Query(ctx, repositories.Query{Collection: types.RemoteVideosCollection})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	v, err := repositories.Decode[types.RemoteVideo](docs[0])
	require.NoError(t, err)
	assert.Equal(t, types.VideoFailed, v.Status)
	assert.Equal(t, VideoErrorQueueFull, v.ErrorCode)
}

func TestCompletionAfterGameEnded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gameID := f.activeGame(t).Game.ID

	set := f.upload(t, "alice", gameID, types.VideoRoleSet)
	view, err := f.svc.Cancel(ctx, "bob", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteGameCancelled, view.Game.Status)
	assert.Equal(t, "alice", view.Game.WinnerUID)

	ready, err := f.svc.CompleteVideo(ctx, set.ID, "u")
	require.NoError(t, err)
	assert.Equal(t, types.VideoReady, ready.Status)

	view, err = f.svc.Get(ctx, "alice", gameID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteGameCancelled, view.Game.Status)
	assert.Equal(t, types.RoundAwaitingSet, view.Round.Status)
}

func TestCancelWaitingGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, "bob", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodePermissionDenied))

	view, err := f.svc.Cancel(ctx, "alice", created.Game.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteGameCancelled, view.Game.Status)
	assert.Empty(t, view.Game.WinnerUID)

	_, err = f.svc.Join(ctx, "bob", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodeConflict))
}

func TestFindRandomGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, notify.RegisterToken(ctx, f.repo, "alice", "alice-phone"))
	require.NoError(t, notify.RegisterToken(ctx, f.repo, "carol", "carol-phone"))
	require.NoError(t, f.repo.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return tx.Set(ctx, types.UsersCollection, "dave", &types.User{ID: "dave", DisplayName: "Dave"})
	}))

	first, err := f.svc.FindRandomGame(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, types.RemoteGameWaiting, first.Game.Status)
	assert.Equal(t, []string{"carol"}, f.notifier.recipients(), "only players with devices other than the caller")

	again, err := f.svc.FindRandomGame(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Game.ID, again.Game.ID)

	joined, err := f.svc.FindRandomGame(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, joined.Created)
	assert.Equal(t, first.Game.ID, joined.Game.ID)
	assert.Equal(t, types.RemoteGameActive, joined.Game.Status)
	require.NotNil(t, joined.Round)
	assert.Equal(t, "alice", joined.Round.OffenseUID)
}

func TestFindRandomGame_WithdrawsOwnWaitingGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	own, err := f.svc.FindRandomGame(ctx, "alice")
	require.NoError(t, err)
	require.True(t, own.Created)
	other, err := f.svc.Create(ctx, "bob")
	require.NoError(t, err)

	joined, err := f.svc.FindRandomGame(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, joined.Created)
	assert.Equal(t, other.Game.ID, joined.Game.ID)
	assert.Equal(t, types.RemoteGameActive, joined.Game.Status)

	doc, err := f.repo.Get(ctx, types.RemoteGamesCollection, own.Game.ID)
	require.NoError(t, err)
	left, err := repositories.Decode[types.RemoteGame](doc)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteGameCancelled, left.Status)

	third, err := f.svc.FindRandomGame(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, third.Created, "alice's withdrawn game is not offered to anyone else")
	assert.NotEqual(t, own.Game.ID, third.Game.ID)
}

func TestFindRandomGame_NotificationFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, notify.RegisterToken(ctx, f.repo, "carol", "carol-phone"))
	f.notifier.err = errors.New("messaging down")

	res, err := f.svc.FindRandomGame(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, "alice")
	require.NoError(t, err)

	err = f.svc.Notify(ctx, "alice", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodeIllegalTransition), "no opponent yet")

	_, err = f.svc.Join(ctx, "bob", created.Game.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Notify(ctx, "bob", created.Game.ID))
	assert.Equal(t, []string{"alice", "alice"}, f.notifier.recipients())

	f.notifier.err = errors.New("down")
	err = f.svc.Notify(ctx, "alice", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodeUnavailable))
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, "alice")
	require.NoError(t, err)

	w, err := f.svc.Watch(ctx, "alice", created.Game.ID)
	require.NoError(t, err)
	defer w.Close()

	next := func() GameView {
		select {
		case v, ok := <-w.C():
			require.True(t, ok)
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no game update")
		}
		return GameView{}
	}

	initial := next()
	assert.Equal(t, types.RemoteGameWaiting, initial.Game.Status)
	assert.Nil(t, initial.Round)

	_, err = f.svc.Join(ctx, "bob", created.Game.ID)
	require.NoError(t, err)
	joined := next()
	assert.Equal(t, types.RemoteGameActive, joined.Game.Status)
	require.NotNil(t, joined.Round)
	assert.Equal(t, types.RoundAwaitingSet, joined.Round.Status)

	_, err = f.svc.Watch(ctx, "carol", created.Game.ID)
	assert.True(t, game.IsCode(err, game.CodePermissionDenied))
}

func TestFailStaleUploads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	gameID := f.activeGame(t).Game.ID

	v := f.upload(t, "alice", gameID, types.VideoRoleSet)

	n, err := f.svc.FailStaleUploads(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now = now.Add(time.Hour)
	n, err = f.svc.FailStaleUploads(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.GetVideo(ctx, "alice", gameID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, types.VideoFailed, got.Status)
	assert.Equal(t, VideoErrorInterrupted, got.ErrorCode)
}
