package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

type AvatarUpload struct {
	UploadURL string
	Avatar    domain.Avatar
	ExpiresIn int64 // seconds
}

// RequestAvatarUpload points the caller's avatar at a new object key and
// returns a presigned URL the client uploads the image to. The previous
// uploaded object is removed best effort.
func (s *Service) RequestAvatarUpload(ctx context.Context, userID, contentType string) (AvatarUpload, error) {
	if userID == "" {
		return AvatarUpload{}, domain.ErrTokenMissing()
	}
	if s.avatars == nil {
		return AvatarUpload{}, domain.ErrStorageUnavailable(fmt.Errorf("avatar storage not configured"))
	}
	ext, ok := avatarExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return AvatarUpload{}, domain.ErrInvalidField("content_type", "must be image/jpeg, image/png or image/webp")
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AvatarUpload{}, err
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", userID, uuid.NewString(), ext)
	uploadURL, err := s.avatars.PresignUpload(ctx, key, contentType)
	if err != nil {
		return AvatarUpload{}, domain.ErrStorageUnavailable(err)
	}

	avatar := domain.Avatar{PublicID: key, URL: s.avatars.PublicURL(key)}
	if err := s.users.UpdateAvatar(ctx, userID, avatar); err != nil {
		return AvatarUpload{}, err
	}

	s.removeAvatarObject(ctx, u.Avatar)

	return AvatarUpload{
		UploadURL: uploadURL,
		Avatar:    avatar,
		ExpiresIn: int64(s.avatarPresignTTL.Seconds()),
	}, nil
}

// removeAvatarObject ignores the placeholder avatar and any failure.
func (s *Service) removeAvatarObject(ctx context.Context, a domain.Avatar) {
	if s.avatars == nil || !strings.HasPrefix(a.PublicID, "avatars/") {
		return
	}
	if err := s.avatars.Delete(ctx, a.PublicID); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("key", a.PublicID).Msg("avatar cleanup failed")
	}
}
