package api

import (
	"net/http"
	"strings"

	"github.com/chemcloud-org/chemcloud/internal/logger"
)

// handleToken is POST {prefix}/oauth/token: the OAuth2 password and
// refresh flows, passed through to the identity provider. Provider
// rejections are forwarded with their original status code and body.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.handleError(w, r, newError(http.StatusUnprocessableEntity, "malformed form body"))
		return
	}

	var body []byte
	var err error
	switch grant := r.PostFormValue("grant_type"); grant {
	case "password":
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")
		if username == "" || password == "" {
			a.handleError(w, r, newError(http.StatusUnprocessableEntity,
				"username and password are required"))
			return
		}
		scope := r.PostFormValue("scope")
		if scope == "" {
			scope = strings.Join([]string{"openid", "offline_access", "compute:public"}, " ")
		}
		body, err = a.auth0.PasswordToken(r.Context(), username, password, scope)
	case "refresh_token":
		refresh := r.PostFormValue("refresh_token")
		if refresh == "" {
			a.handleError(w, r, newError(http.StatusUnprocessableEntity,
				"refresh_token is required"))
			return
		}
		body, err = a.auth0.RefreshToken(r.Context(), refresh)
	default:
		a.handleError(w, r, newError(http.StatusUnprocessableEntity,
			"grant_type must be password or refresh_token"))
		return
	}

	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// handleAuth0Callback is GET {prefix}/oauth/auth0/callback: the
// authorization-code flow. Tokens are validated, set as httpOnly
// cookies, and the browser is redirected to the dashboard.
func (a *API) handleAuth0Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		a.handleError(w, r, newError(http.StatusUnprocessableEntity, "missing code"))
		return
	}

	tokens, err := a.auth0.ExchangeCode(r.Context(), code)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	if a.verifier != nil && tokens.IDToken != "" {
		if _, err := a.verifier.Verify(r.Context(), tokens.IDToken); err != nil {
			logger.Warn(r.Context(), "auth0 callback returned an unverifiable id token", "err", err)
			a.handleError(w, r, newError(http.StatusUnauthorized, "Could not validate credentials"))
			return
		}
	}

	setTokenCookie(w, r, a.cfg.IDTokenCookieKey, tokens.IDToken)
	setTokenCookie(w, r, a.cfg.RefreshTokenCookieKey, tokens.RefreshToken)
	http.Redirect(w, r, a.cfg.UsersPrefix+"/dashboard", http.StatusTemporaryRedirect)
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	if value == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   r.TLS != nil,
		HttpOnly: true,
	})
}
