package handler

import (
	"relaychat/internal/app/relay"
	"relaychat/internal/configs"
)

// AppDeps bundles the shared dependencies handed to every handler.
type AppDeps struct {
	Hub    *relay.Hub
	Config *configs.AppConfig
}
