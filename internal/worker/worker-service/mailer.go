package worker_service

import (
	"fmt"
	"strings"

	"github.com/xenn00/musori/internal/queue"
	"gopkg.in/gomail.v2"
)

type Mailer interface {
	SendRoomInvite(payload queue.RoomInvitePayload) error
}

type SMTPMailer struct {
	dialer    *gomail.Dialer
	from      string
	publicURL string
}

func NewSMTPMailer(host string, port int, username, password, from, publicURL string) *SMTPMailer {
	return &SMTPMailer{
		dialer:    gomail.NewDialer(host, port, username, password),
		from:      from,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (m *SMTPMailer) SendRoomInvite(payload queue.RoomInvitePayload) error {
	if payload.InviteeEmail == "" {
		return fmt.Errorf("invite %s has no recipient", payload.RoomID)
	}
	if err := m.dialer.DialAndSend(buildInviteMessage(m.from, m.publicURL, payload)); err != nil {
		return fmt.Errorf("failed to send invite email: %w", err)
	}
	return nil
}

func buildInviteMessage(from, publicURL string, payload queue.RoomInvitePayload) *gomail.Message {
	inviter := payload.InviterNickname
	if inviter == "" {
		inviter = "Someone"
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", payload.InviteeEmail)
	msg.SetHeader("Subject", fmt.Sprintf("%s invited you to %s", inviter, payload.RoomName))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hello,\n\n%s added you to the room %q.\n\nOpen %s/ws?room_id=%s to join the conversation.\n",
		inviter, payload.RoomName, publicURL, payload.RoomID,
	))
	return msg
}
