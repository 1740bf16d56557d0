package modules

import (
	"time"

	"pdsno.io/controller/internal/api/handlers"
	"pdsno.io/controller/internal/api/middleware"
	"pdsno.io/controller/internal/config"
	"pdsno.io/controller/internal/domain"
)

// NewServerDeps builds base server deps then lets each module contribute
// its own wiring.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Store:         infra.Store,
		SelfID:        cfg.Controller.ControllerID,
		SelfRole:      domain.ControllerRole(cfg.Controller.Role),
		Region:        cfg.Controller.Region,
		Authenticator: infra.Authenticator,
		JWTCfg: middleware.JWTConfig{
			SigningKey: []byte(cfg.Security.SessionSecret),
			Issuer:     "pdsno",
			ExpiresIn:  8 * time.Hour,
		},
		Operators: operatorCredentials(cfg.Operators),
	}
	if infra.DB != nil {
		deps.Pool = infra.DB.Pool
	}

	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

func operatorCredentials(entries []config.OperatorConfig) []handlers.OperatorCredential {
	creds := make([]handlers.OperatorCredential, 0, len(entries))
	for _, e := range entries {
		creds = append(creds, handlers.OperatorCredential{
			OperatorID:   e.OperatorID,
			Username:     e.Username,
			PasswordHash: e.PasswordHash,
			Roles:        e.Roles,
		})
	}
	return creds
}
