package user_dto

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type UpdateProfileRequest struct {
	Nickname       *string `json:"nickname" validate:"omitempty,nickname"`
	Bio            *string `json:"bio" validate:"omitempty,max=280"`
	StatusMessage  *string `json:"status_message" validate:"omitempty,max=100"`
	Theme          *string `json:"theme" validate:"omitempty,oneof=light dark system"`
	ThemeColor     *string `json:"theme_color" validate:"omitempty,hexcolor"`
	NotifyInvites  *bool   `json:"notify_invites"`
	NotifyMessages *bool   `json:"notify_messages"`
}

// Fields returns the column updates requested, keyed by column name.
func (r UpdateProfileRequest) Fields() map[string]any {
	fields := map[string]any{}
	if r.Nickname != nil {
		fields["nickname"] = strings.TrimSpace(*r.Nickname)
	}
	if r.Bio != nil {
		fields["bio"] = *r.Bio
	}
	if r.StatusMessage != nil {
		fields["status_message"] = *r.StatusMessage
	}
	if r.Theme != nil {
		fields["theme"] = *r.Theme
	}
	if r.ThemeColor != nil {
		fields["theme_color"] = *r.ThemeColor
	}
	if r.NotifyInvites != nil {
		fields["notify_invites"] = *r.NotifyInvites
	}
	if r.NotifyMessages != nil {
		fields["notify_messages"] = *r.NotifyMessages
	}
	return fields
}

var nicknameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.\- ]{2,32}$`)

func NicknameValidator(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return strings.TrimSpace(v) == v && nicknameRegex.MatchString(v)
}
