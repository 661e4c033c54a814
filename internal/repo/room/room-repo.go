package room_repo

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/state"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoomRepo struct {
	AppState *state.AppState
}

func NewRoomRepo(appState *state.AppState) RoomRepoContract {
	return &RoomRepo{
		AppState: appState,
	}
}

// CreateRoom inserts the room together with a membership row for every id in room.Members.
func (r *RoomRepo) CreateRoom(ctx context.Context, room *entity.Room) *app_error.AppError {
	err := r.AppState.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if len(room.Members) == 0 {
			return nil
		}
		members := make([]entity.RoomMember, 0, len(room.Members))
		for _, userId := range room.Members {
			members = append(members, entity.RoomMember{RoomID: room.ID, UserID: userId})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return app_error.NewAppError(http.StatusConflict, "room already exists", "room-id")
		}
		log.Error().Err(err).Str("room_id", room.ID).Msg("failed to create room")
		return app_error.NewAppError(http.StatusInternalServerError, "failed to create room", "db-error")
	}
	return nil
}

func (r *RoomRepo) FindRoomByID(ctx context.Context, roomId string) (*entity.Room, *app_error.AppError) {
	var room entity.Room
	db := r.AppState.DB.WithContext(ctx)

	if err := db.Where("id = ?", roomId).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NewAppError(http.StatusNotFound, "room not found", "room-id")
		}
		log.Error().Err(err).Str("room_id", roomId).Msg("failed to fetch room")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to fetch room", "db-error")
	}

	rooms := []entity.Room{room}
	if err := r.loadMembers(db, rooms); err != nil {
		return nil, err
	}
	return &rooms[0], nil
}

// ListVisibleRooms returns public rooms plus private rooms userId created or belongs to, oldest first.
func (r *RoomRepo) ListVisibleRooms(ctx context.Context, userId string) ([]entity.Room, *app_error.AppError) {
	rooms := []entity.Room{}
	db := r.AppState.DB.WithContext(ctx)

	memberOf := db.Model(&entity.RoomMember{}).Select("room_id").Where("user_id = ?", userId)
	err := db.Where("is_public = ?", true).
		Or("created_by = ?", userId).
		Or("id IN (?)", memberOf).
		Order("created_at ASC, id ASC").
		Find(&rooms).Error
	if err != nil {
		log.Error().Err(err).Str("user_id", userId).Msg("failed to list rooms")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to list rooms", "db-error")
	}

	if err := r.loadMembers(db, rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// UpdateRoomSettings writes name, description and visibility only when the stored revision still
// equals expectedRevision, and bumps the revision.
func (r *RoomRepo) UpdateRoomSettings(ctx context.Context, room entity.Room, expectedRevision int64) (*entity.Room, *app_error.AppError) {
	db := r.AppState.DB.WithContext(ctx)

	res := db.Model(&entity.Room{}).
		Where("id = ? AND revision = ?", room.ID, expectedRevision).
		Updates(map[string]any{
			"name":        room.Name,
			"description": room.Description,
			"is_public":   room.IsPublic,
			"revision":    gorm.Expr("revision + 1"),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		log.Error().Err(res.Error).Str("room_id", room.ID).Msg("failed to update room")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to update room", "db-error")
	}

	if res.RowsAffected == 0 {
		if _, err := r.FindRoomByID(ctx, room.ID); err != nil {
			return nil, err
		}
		return nil, app_error.NewAppError(http.StatusConflict, "room was modified by another operation", "revision")
	}

	return r.FindRoomByID(ctx, room.ID)
}

func (r *RoomRepo) DeleteRoom(ctx context.Context, roomId string) *app_error.AppError {
	var deleted int64
	err := r.AppState.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomId).Delete(&entity.RoomMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", roomId).Delete(&entity.Room{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomId).Msg("failed to delete room")
		return app_error.NewAppError(http.StatusInternalServerError, "failed to delete room", "db-error")
	}
	if deleted == 0 {
		return app_error.NewAppError(http.StatusNotFound, "room not found", "room-id")
	}
	return nil
}

// AddMember reports whether userId was newly added. An existing membership is left untouched, so
// repeated or concurrent calls add the user at most once.
func (r *RoomRepo) AddMember(ctx context.Context, roomId, userId string) (bool, *app_error.AppError) {
	var added bool
	err := r.AppState.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entity.RoomMember{RoomID: roomId, UserID: userId})
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected == 1
		if !added {
			return nil
		}
		return bumpRevision(tx, roomId)
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomId).Str("user_id", userId).Msg("failed to add room member")
		return false, app_error.NewAppError(http.StatusInternalServerError, "failed to add room member", "db-error")
	}
	return added, nil
}

func (r *RoomRepo) RemoveMember(ctx context.Context, roomId, userId string) (bool, *app_error.AppError) {
	var removed bool
	err := r.AppState.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("room_id = ? AND user_id = ?", roomId, userId).Delete(&entity.RoomMember{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		if !removed {
			return nil
		}
		return bumpRevision(tx, roomId)
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomId).Str("user_id", userId).Msg("failed to remove room member")
		return false, app_error.NewAppError(http.StatusInternalServerError, "failed to remove room member", "db-error")
	}
	return removed, nil
}

func (r *RoomRepo) RemoveUserFromAllRooms(ctx context.Context, userId string) *app_error.AppError {
	err := r.AppState.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roomIds := tx.Model(&entity.RoomMember{}).Select("room_id").Where("user_id = ?", userId)
		if err := tx.Model(&entity.Room{}).Where("id IN (?)", roomIds).
			Update("revision", gorm.Expr("revision + 1")).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userId).Delete(&entity.RoomMember{}).Error
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userId).Msg("failed to remove user memberships")
		return app_error.NewAppError(http.StatusInternalServerError, "failed to remove user memberships", "db-error")
	}
	return nil
}

func bumpRevision(tx *gorm.DB, roomId string) error {
	return tx.Model(&entity.Room{}).Where("id = ?", roomId).
		Updates(map[string]any{"revision": gorm.Expr("revision + 1"), "updated_at": time.Now()}).Error
}

func (r *RoomRepo) loadMembers(db *gorm.DB, rooms []entity.Room) *app_error.AppError {
	if len(rooms) == 0 {
		return nil
	}
	ids := make([]string, len(rooms))
	pos := make(map[string]int, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
		pos[rooms[i].ID] = i
		rooms[i].Members = []string{}
	}

	var members []entity.RoomMember
	if err := db.Where("room_id IN ?", ids).Order("joined_at ASC, user_id ASC").Find(&members).Error; err != nil {
		log.Error().Err(err).Msg("failed to fetch room members")
		return app_error.NewAppError(http.StatusInternalServerError, "failed to fetch room members", "db-error")
	}
	for _, m := range members {
		i := pos[m.RoomID]
		rooms[i].Members = append(rooms[i].Members, m.UserID)
	}
	return nil
}
