package chat_dto

const MaxMessageLength = 4000

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type HistoryRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=200"`
}
