// Package superset is a minimal client for the dashboard service, used only
// to mint guest tokens for embedded dashboards. Superset's internals are an
// opaque collaborator; any failure here is treated as a misconfiguration.
package superset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openedx/platform-plugin-aspects/internal/config"
	"github.com/openedx/platform-plugin-aspects/internal/coursekey"
)

// ErrMisconfigured marks guest-token failures caused by bad Superset
// configuration or an unreachable Superset server.
var ErrMisconfigured = errors.New("unable to fetch Superset guest token")

// Client talks to one Superset deployment.
type Client struct {
	baseURL    string
	username   string
	password   string
	locales    []string
	httpClient *http.Client
}

// NewClient creates a Client. The internal service URL is preferred for
// server-to-server calls, falling back to the public one.
func NewClient(cfg config.SupersetConfig, locales []string) *Client {
	baseURL := cfg.InternalServiceURL
	if baseURL == "" {
		baseURL = cfg.ServiceURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		locales:    locales,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type rlsClause struct {
	Clause string `json:"clause"`
}

type guestTokenRequest struct {
	User      map[string]string `json:"user"`
	Resources []resource        `json:"resources"`
	RLS       []rlsClause       `json:"rls"`
}

// GuestToken generates a Superset guest token granting the user access to the
// given dashboards, restricted by the row-level-security filter templates.
func (c *Client) GuestToken(username string, course coursekey.CourseKey, dashboards []config.Dashboard, filters []string) (string, error) {
	accessToken, err := c.login()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	resources := make([]resource, 0, len(dashboards))
	for _, dashboard := range dashboards {
		resources = append(resources, resource{Type: "dashboard", ID: dashboard.UUID})
		if !dashboard.AllowTranslations {
			continue
		}
		// Grant access to every localized variant of the dashboard too.
		for _, locale := range c.locales {
			localized, err := LocalizedUUID(dashboard.UUID, locale)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrMisconfigured, err)
			}
			resources = append(resources, resource{Type: "dashboard", ID: localized})
		}
	}

	rls := make([]rlsClause, 0, len(filters))
	for _, filter := range filters {
		rls = append(rls, rlsClause{Clause: expandFilter(filter, course)})
	}

	payload := guestTokenRequest{
		User:      map[string]string{"username": username},
		Resources: resources,
		RLS:       rls,
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := c.post("/api/v1/security/guest_token/", accessToken, payload, &response); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	return response.Token, nil
}

// login exchanges the configured credentials for an API access token.
func (c *Client) login() (string, error) {
	payload := map[string]interface{}{
		"username": c.username,
		"password": c.password,
		"provider": "db",
		"refresh":  true,
	}
	var response struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.post("/api/v1/security/login", "", payload, &response); err != nil {
		return "", err
	}
	if response.AccessToken == "" {
		return "", errors.New("superset login returned no access token")
	}
	return response.AccessToken, nil
}

func (c *Client) post(path, bearer string, payload, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request to superset: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call superset at %s%s: %w", c.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("superset returned status %d for %s: %s", resp.StatusCode, path, string(responseBody))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// LocalizedUUID derives the idempotent UUID of a dashboard's localized copy.
func LocalizedUUID(baseUUID, locale string) (string, error) {
	base, err := uuid.Parse(baseUUID)
	if err != nil {
		return "", fmt.Errorf("invalid dashboard uuid %q: %w", baseUUID, err)
	}
	namespace := uuid.NewSHA1(base, []byte("superset"))
	normalized := strings.ReplaceAll(strings.ToLower(locale), "-", "_")
	return uuid.NewSHA1(namespace, []byte(normalized)).String(), nil
}

// expandFilter substitutes course placeholders in a filter template, e.g.
// "org = '{course_id.org}'" or "course_key = '{course_id}'".
func expandFilter(template string, course coursekey.CourseKey) string {
	replacer := strings.NewReplacer(
		"{course_id.org}", course.Org,
		"{course_id.course}", course.Course,
		"{course_id.run}", course.Run,
		"{course_id}", course.String(),
	)
	return replacer.Replace(template)
}
