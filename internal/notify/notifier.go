package notify

import (
	"context"
	"fmt"
	"log"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// StatusFunc отдаёт текстовую сводку по боту для команды /status.
// Вынесена в callback, чтобы нотифайер не знал про движок.
type StatusFunc func(ctx context.Context) string

// Telegram — пассивный нотифайер + одна команда /status.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	status StatusFunc
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// SetStatus подключает обработчик /status. Вызывать до Start.
func (t *Telegram) SetStatus(fn StatusFunc) { t.status = fn }

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start: long-polling для команд из нужного чата.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				switch upd.Message.Command() {
				case "status":
					if t.status != nil {
						t.Send(t.status(ctx))
					}
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {}

// Stdout — заглушка, всё пишет в лог.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { log.Println(msg) }
func (s *Stdout) Sendf(format string, args ...any) { log.Printf(format, args...) }
