package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cg-del/filiup/quiz_client/auth"
	"github.com/cg-del/filiup/shared"
)

type Client struct {
	baseURL    string
	tokens     auth.TokenProvider
	httpClient *http.Client
}

// NewClient returns a leaderboard client with sane timeouts.
func NewClient(baseURL string, tokens auth.TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   3 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// GetQuizLeaderboard fetches the ranked table for one quiz.
func (c *Client) GetQuizLeaderboard(ctx context.Context, quizID string) (shared.Leaderboard, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return shared.Leaderboard{}, fmt.Errorf("leaderboard auth: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/leaderboard/"+url.PathEscape(quizID), nil)
	if err != nil {
		return shared.Leaderboard{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.Leaderboard{}, fmt.Errorf("get leaderboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return shared.Leaderboard{}, fmt.Errorf("leaderboard error %d: %s", resp.StatusCode, string(b))
	}

	var board shared.Leaderboard
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return shared.Leaderboard{}, fmt.Errorf("decode response: %w", err)
	}

	return board, nil
}
