package codex

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// NewLoginFlow builds a browser login session. The extra URL params mirror
// what the official CLI sends; without them the authorize endpoint serves
// the web-app flow instead of the CLI one.
func NewLoginFlow() *auth.CodeFlow {
	return auth.NewCodeFlow(auth.CodeFlowConfig{
		Provider:      auth.ProviderCodex,
		OAuth:         OAuthConfig(),
		PreferredPort: CallbackPort,
		CallbackPath:  CallbackPath,
		AuthCodeOptions: []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("id_token_add_organizations", "true"),
			oauth2.SetAuthURLParam("codex_cli_simplified_flow", "true"),
			oauth2.SetAuthURLParam("originator", "codex_cli_rs"),
		},
	}, completeLogin)
}

// completeLogin pulls the account identity out of the issued tokens. The
// ChatGPT account id is the stable identifier; the id_token usually
// carries a better email than the access token.
func completeLogin(_ context.Context, _ *oauth2.Config, tok *oauth2.Token) (auth.Record, error) {
	claims, err := parseClaims(tok.AccessToken)
	if err != nil {
		return auth.Record{}, fmt.Errorf("access token is not a readable JWT: %w", err)
	}

	email := claims.emailFrom()
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		if idClaims, err := parseClaims(idToken); err == nil {
			if e := idClaims.emailFrom(); e != "" {
				email = e
			}
			if claims.Auth.ChatGPTPlanType == "" {
				claims.Auth.ChatGPTPlanType = idClaims.Auth.ChatGPTPlanType
			}
		}
	}

	accountID := claims.Auth.ChatGPTAccountID
	if accountID == "" {
		accountID = email
	}
	if accountID == "" {
		return auth.Record{}, fmt.Errorf("token carries neither a ChatGPT account id nor an email")
	}

	rec := auth.Record{
		AccountID:    accountID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	rec = rec.WithMeta(auth.MetaEmail, email).WithMeta(auth.MetaPlanType, claims.Auth.ChatGPTPlanType)
	return rec, nil
}
