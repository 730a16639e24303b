package supabase

import (
	"context"
	"net/http"
)

// Session is the session returned by the Supabase auth service
type Session struct {
	AccessToken  string                 `json:"access_token"`
	TokenType    string                 `json:"token_type"`
	ExpiresIn    int64                  `json:"expires_in"`
	ExpiresAt    int64                  `json:"expires_at"`
	RefreshToken string                 `json:"refresh_token"`
	User         map[string]interface{} `json:"user,omitempty"`
}

// SignInWithPassword signs in a user with email and password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	r, err := c.NewRequest(ctx, http.MethodPost, AuthPath+"/token", "grant_type=password", body)
	if err != nil {
		return nil, err
	}
	session := &Session{}
	if err := c.DoJSON(r, session); err != nil {
		return nil, err
	}
	return session, nil
}

// RefreshSession exchanges a refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	r, err := c.NewRequest(ctx, http.MethodPost, AuthPath+"/token", "grant_type=refresh_token", body)
	if err != nil {
		return nil, err
	}
	session := &Session{}
	if err := c.DoJSON(r, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut revokes the refresh tokens of the session the access token belongs to
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	r, err := c.NewRequest(ctx, http.MethodPost, AuthPath+"/logout", "", nil)
	if err != nil {
		return err
	}
	r.Header.Set("Authorization", "Bearer "+accessToken)
	_, _, err = c.Do(r)
	return err
}
