package modules

import (
	"hseptw.io/ptw/internal/api/handlers"
	"hseptw.io/ptw/internal/api/middleware"
	"hseptw.io/ptw/internal/config"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Pool:   infra.Pool,
		Policy: infra.Policy,
		JWTCfg: JWTConfig(cfg.Security),
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		contributor, ok := mod.(ServerDepsContributor)
		if !ok {
			continue
		}
		contributor.ContributeServerDeps(&deps)
	}
	return deps
}

// JWTConfig maps the security section onto the token middleware config.
func JWTConfig(sec config.SecurityConfig) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey: []byte(sec.JWTSigningKey),
		Issuer:     sec.JWTIssuer,
		ExpiresIn:  sec.TokenTTL,
	}
}
