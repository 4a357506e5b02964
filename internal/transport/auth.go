package transport

import (
	"context"
	"net/http"

	"opsdash/internal/tenant"
)

// Credentials 登录凭证
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult `POST /auth/login` 响应
type LoginResult struct {
	Token string         `json:"token"`
	User  tenant.Payload `json:"user"`
}

// Me exchanges the stored token for the identity payload.
func (c *Client) Me(ctx context.Context) (tenant.Payload, error) {
	var p tenant.Payload
	err := c.GetJSON(ctx, "/auth/me", nil, &p)
	return p, err
}

// Login exchanges credentials for a token and identity payload. A 401 here
// means wrong credentials, not an expired session.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var res LoginResult
	err := c.Send(ctx, Request{
		Method:         http.MethodPost,
		Path:           "/auth/login",
		Body:           creds,
		SkipAuthExpiry: true,
	}, &res)
	return res, err
}
