package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/notify"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/queue"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/uploads"
)

// Error codes recorded on failed videos.
const (
	VideoErrorQueueFull    = "queue_full"
	VideoErrorUploadFailed = "upload_failed"
	VideoErrorSpoolMissing = "spool_missing"
	VideoErrorInterrupted  = "interrupted"
)

var videoExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"video/x-m4v":     ".m4v",
}

// UploadRequest is one clip sent by a participant.
type UploadRequest struct {
	GameID      string
	Role        types.VideoRole
	ContentType string
	DurationMs  int64
	Body        io.Reader
}

// expectedRoundStatus is the round status in which a video of role may be uploaded or applied.
func expectedRoundStatus(role types.VideoRole) types.RoundStatus {
	if role == types.VideoRoleSet {
		return types.RoundAwaitingSet
	}
	return types.RoundAwaitingReply
}

// checkUploader verifies that caller may upload a video of role into the current round.
func checkUploader(view *GameView, caller string, role types.VideoRole) error {
	g, r := view.Game, view.Round
	if !g.HasPlayer(caller) {
		return game.PermissionDenied("not a participant of game %s", g.ID)
	}
	if g.Status != types.RemoteGameActive || r == nil {
		return game.IllegalTransition("game is %s", g.Status)
	}
	owner := r.OffenseUID
	if role == types.VideoRoleReply {
		owner = r.DefenseUID
	}
	if caller != owner {
		return game.PermissionDenied("%s video belongs to the other player", role)
	}
	if r.Status != expectedRoundStatus(role) {
		return game.IllegalTransition("round is %s", r.Status)
	}
	return nil
}

func (s *Service) validateUpload(req UploadRequest) error {
	if !req.Role.Valid() {
		return game.InvalidArgument("role must be set or reply")
	}
	if !strings.HasPrefix(req.ContentType, "video/") {
		return game.InvalidArgument("content type %q is not a video", req.ContentType)
	}
	if req.DurationMs <= 0 {
		return game.InvalidArgument("duration is required")
	}
	if time.Duration(req.DurationMs)*time.Millisecond > s.maxVideoDuration {
		return game.InvalidArgument("video is longer than %s", s.maxVideoDuration)
	}
	return nil
}

// UploadVideo validates and spools a clip, records it as uploading and queues it for the upload worker.
// The round only advances once the worker reports completion.
func (s *Service) UploadVideo(ctx context.Context, caller string, req UploadRequest) (*types.RemoteVideo, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}
	view, err := s.Get(ctx, caller, req.GameID)
	if err != nil {
		return nil, err
	}
	if err := checkUploader(view, caller, req.Role); err != nil {
		return nil, err
	}

	path, size, err := uploads.Spool(req.Body, s.spoolDir, s.maxVideoBytes)
	if err != nil {
		if errors.Is(err, uploads.ErrTooLarge) {
			return nil, game.InvalidArgument("video is larger than %d bytes", s.maxVideoBytes)
		}
		return nil, game.UploadFailure(err, "failed to receive video")
	}
	if size == 0 {
		os.Remove(path)
		return nil, game.InvalidArgument("video is empty")
	}

	var video *types.RemoteVideo
	err = s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		view, err := loadView(ctx, tx, req.GameID)
		if err != nil {
			return err
		}
		if err := checkUploader(view, caller, req.Role); err != nil {
			return err
		}
		if err := s.checkNoActiveUpload(ctx, tx, view.Round.ID, req.Role); err != nil {
			return err
		}

		now := s.now()
		id := uuid.NewString()
		video = &types.RemoteVideo{
			ID:          id,
			OwnerUID:    caller,
			GameID:      req.GameID,
			RoundID:     view.Round.ID,
			Role:        req.Role,
			StoragePath: fmt.Sprintf("remote-skate/%s/%s/%s-%s%s", req.GameID, view.Round.ID, req.Role, id, videoExtensions[req.ContentType]),
			Status:      types.VideoUploading,
			DurationMs:  req.DurationMs,
			SizeBytes:   size,
			ContentType: req.ContentType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.Create(ctx, types.RemoteVideosCollection, id, video)
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	job := uploads.Job{
		VideoID:     video.ID,
		GameID:      video.GameID,
		RoundID:     video.RoundID,
		OwnerUID:    caller,
		Role:        video.Role,
		Key:         video.StoragePath,
		Path:        path,
		ContentType: video.ContentType,
		Size:        size,
	}
	if err := s.jobs.Enqueue(job); err != nil {
		os.Remove(path)
		if ferr := s.FailVideo(ctx, video.ID, VideoErrorQueueFull, err.Error()); ferr != nil {
			log.Warn("Failed to mark video %s as failed: %v", video.ID, ferr)
		}
		if errors.Is(err, queue.ErrQueueFull) {
			return nil, game.Unavailable(err, "upload queue is full, try again shortly")
		}
		return nil, game.Unavailable(err, "failed to queue video")
	}
	log.Debug("Queued %s video %s for game %s (%d bytes)", video.Role, video.ID, video.GameID, size)
	return video, nil
}

// checkNoActiveUpload rejects a second clip for a round and role unless earlier ones failed.
func (s *Service) checkNoActiveUpload(ctx context.Context, tx repositories.Tx, roundID string, role types.VideoRole) error {
	docs, err := tx.Query(ctx, repositories.Query{
		Collection: types.RemoteVideosCollection,
		Where: []repositories.Filter{
			{Field: "roundId", Op: repositories.OpEqual, Value: roundID},
			{Field: "role", Op: repositories.OpEqual, Value: role},
		},
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		v, err := repositories.Decode[types.RemoteVideo](doc)
		if err != nil {
			return err
		}
		if v.Status != types.VideoFailed {
			return game.Conflict("a %s video is already %s for this round", role, v.Status)
		}
	}
	return nil
}

func loadVideo(ctx context.Context, tx repositories.Tx, videoID string) (*types.RemoteVideo, error) {
	doc, err := tx.Get(ctx, types.RemoteVideosCollection, videoID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, game.NotFound("video %s not found", videoID)
		}
		return nil, err
	}
	return repositories.Decode[types.RemoteVideo](doc)
}

// CompleteVideo marks a video ready and advances its round in the same transaction.
// Completion for a round that has moved on, or for a video no longer uploading, changes no game state.
func (s *Service) CompleteVideo(ctx context.Context, videoID, url string) (*types.RemoteVideo, error) {
	var video *types.RemoteVideo
	var advanced *GameView
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		advanced = nil
		var err error
		video, err = loadVideo(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if video.Status != types.VideoUploading {
			log.Debug("Ignoring completion of %s video %s", video.Status, videoID)
			return nil
		}
		video.Status = types.VideoReady
		video.URL = url
		video.BytesUploaded = video.SizeBytes
		video.UpdatedAt = s.now()
		if err := tx.Set(ctx, types.RemoteVideosCollection, videoID, video); err != nil {
			return err
		}

		view, err := loadView(ctx, tx, video.GameID)
		if err != nil {
			return err
		}
		r := view.Round
		if view.Game.Status != types.RemoteGameActive || r == nil || r.ID != video.RoundID || r.Status != expectedRoundStatus(video.Role) {
			log.Info("Video %s completed after round %s moved on", videoID, video.RoundID)
			return nil
		}

		action := game.ActionSetComplete
		if video.Role == types.VideoRoleReply {
			action = game.ActionReplyComplete
		}
		advanced, _, err = s.applyTx(ctx, tx, video.GameID, game.Transition{Action: action, Actor: video.OwnerUID, VideoID: videoID})
		if err != nil {
			var gerr *game.Error
			if errors.As(err, &gerr) {
				log.Info("Video %s did not advance game %s: %v", videoID, video.GameID, err)
				advanced = nil
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if advanced != nil {
		body := "Your opponent set a trick. Your turn to reply."
		if video.Role == types.VideoRoleReply {
			body = "Your opponent replied. Call the result."
		}
		s.notifyBestEffort(ctx, advanced.Game.CurrentTurnUID, notify.Notification{
			Title: "Your turn",
			Body:  body,
			Data:  map[string]string{"gameId": video.GameID, "videoId": videoID},
		})
	}
	return video, nil
}

// FailVideo records an upload failure. The round is left untouched so the owner can upload again.
func (s *Service) FailVideo(ctx context.Context, videoID, code, message string) error {
	return s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		video, err := loadVideo(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if video.Status != types.VideoUploading {
			return nil
		}
		video.Status = types.VideoFailed
		video.ErrorCode = code
		video.ErrorMessage = message
		video.UpdatedAt = s.now()
		return tx.Set(ctx, types.RemoteVideosCollection, videoID, video)
	})
}

// RecordProgress stores how many bytes of an uploading video have reached the blob store.
func (s *Service) RecordProgress(ctx context.Context, videoID string, uploaded int64) error {
	return s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		video, err := loadVideo(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if video.Status != types.VideoUploading || uploaded <= video.BytesUploaded {
			return nil
		}
		video.BytesUploaded = uploaded
		video.UpdatedAt = s.now()
		return tx.Set(ctx, types.RemoteVideosCollection, videoID, video)
	})
}

// GetVideo returns a video of a game the caller takes part in.
func (s *Service) GetVideo(ctx context.Context, caller, gameID, videoID string) (*types.RemoteVideo, error) {
	var video *types.RemoteVideo
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		g, err := loadGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if !g.HasPlayer(caller) {
			return game.PermissionDenied("not a participant of game %s", gameID)
		}
		video, err = loadVideo(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if video.GameID != gameID {
			return game.NotFound("video %s not found", videoID)
		}
		return nil
	})
	return video, err
}

// FailStaleUploads marks videos stuck uploading since before now-olderThan as failed,
// so their owners can upload again. Spooled payloads do not survive a restart.
func (s *Service) FailStaleUploads(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	docs, err := s.repository.Query(ctx, repositories.Query{
		Collection: types.RemoteVideosCollection,
		Where: []repositories.Filter{
			{Field: "status", Op: repositories.OpEqual, Value: types.VideoUploading},
		},
	})
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, doc := range docs {
		v, err := repositories.Decode[types.RemoteVideo](doc)
		if err != nil {
			return failed, err
		}
		if !v.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.FailVideo(ctx, v.ID, VideoErrorInterrupted, "upload did not finish"); err != nil {
			return failed, err
		}
		failed++
	}
	if failed > 0 {
		log.Info("Failed %d stale uploads", failed)
	}
	return failed, nil
}
