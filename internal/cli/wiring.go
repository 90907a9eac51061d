package cli

import (
	"golang.org/x/time/rate"

	"stompchat/internal/app/chat"
	"stompchat/internal/app/transport"
	"stompchat/internal/configs"
)

// transportConfig maps the loaded settings onto the STOMP adapter configuration.
func transportConfig(cfg *configs.AppConfig) transport.Config {
	tc := transport.DefaultConfig(cfg.WSURL)
	tc.HeartBeat = cfg.HeartBeat
	tc.RequireToken = cfg.RequireToken
	tc.ReRegisterOnReconnect = cfg.ReRegisterOnReconnect
	tc.ReconnectDelay = cfg.ReconnectDelay
	tc.MaxReconnects = cfg.MaxReconnects
	return tc
}

func sessionOptions(cfg *configs.AppConfig) chat.Options {
	opts := chat.DefaultOptions()
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.DedupEchoes = cfg.DedupEchoes
	opts.SendRate = rate.Limit(cfg.SendRate)
	opts.SendBurst = cfg.SendBurst
	return opts
}
