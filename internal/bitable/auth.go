package bitable

import (
	"context"
	"strings"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

type tokenResponse struct {
	apiResponse
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// TenantAccessToken exchanges the app credentials for a bearer token. It is
// not retried; any failure is AuthFailed.
func (c *Client) TenantAccessToken(ctx context.Context) (string, error) {
	const op = "tenant_access_token"

	var resp tokenResponse
	err := c.postJSON(ctx, op, "/auth/v3/tenant_access_token/internal", "", map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	}, &resp)
	if err != nil {
		return "", failure.New(failure.AuthFailed, op, err)
	}
	token := strings.TrimSpace(resp.TenantAccessToken)
	if token == "" {
		return "", failure.Errorf(failure.AuthFailed, op, "empty tenant_access_token")
	}
	return token, nil
}

// token returns explicit when set, otherwise a freshly fetched token.
func (c *Client) token(ctx context.Context, explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, nil
	}
	return c.TenantAccessToken(ctx)
}
