package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// LogMessenger writes off-line messages and verification codes to the log
// instead of an email or SMS provider. It is the default messenger in
// development.
type LogMessenger struct{}

var (
	_ Messenger       = LogMessenger{}
	_ game.CodeSender = LogMessenger{}
)

func (LogMessenger) Send(_ context.Context, p *models.Player, subject, body string) error {
	log.Info().
		Str("player_id", p.ID.String()).
		Str("contact", p.Contact).
		Str("subject", subject).
		Str("body", body).
		Msg("off-line message")
	return nil
}

func (LogMessenger) SendCode(_ context.Context, p *models.Player, code string) error {
	log.Info().
		Str("player_id", p.ID.String()).
		Str("contact", p.Contact).
		Str("code", code).
		Msg("verification code")
	return nil
}
