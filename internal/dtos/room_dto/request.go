package room_dto

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=64"`
	Description string `json:"description" validate:"max=500"`
	IsPublic    *bool  `json:"is_public"`
}

type UpdateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=64"`
	Description string `json:"description" validate:"max=500"`
	IsPublic    bool   `json:"is_public"`
	Revision    *int64 `json:"revision" validate:"required,min=0"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}
