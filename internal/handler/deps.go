package handler

import (
	"stompchat/internal/app/chat"
	"stompchat/internal/configs"
)

// SessionView is the read side of a chat session.
type SessionView interface {
	Snapshot() chat.Snapshot
}

type AppDeps struct {
	Session SessionView
	Config  *configs.AppConfig
}
