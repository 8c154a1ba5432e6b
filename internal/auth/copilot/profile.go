package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

type profile struct {
	id    string
	login string
	email string
}

// fetchProfile resolves the user behind a token via the GitHub API. When
// the profile hides the email, /user/emails is tried as a fallback.
func fetchProfile(ctx context.Context, client *http.Client, base, token string) (profile, error) {
	var p profile

	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, base+"/user", token, &user); err != nil {
		return p, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	if user.ID != 0 {
		p.id = strconv.FormatInt(user.ID, 10)
	}
	p.login = user.Login
	p.email = user.Email
	if p.email == "" {
		p.email = fetchPrimaryEmail(ctx, client, base, token)
	}
	return p, nil
}

// fetchPrimaryEmail is best effort: a missing email never fails a login.
func fetchPrimaryEmail(ctx context.Context, client *http.Client, base, token string) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, base+"/user/emails", token, &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

func getJSON(ctx context.Context, client *http.Client, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
