package douyin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	errs "douyindl/pkg/errors"
	"douyindl/pkg/logger"
	"douyindl/pkg/ratelimit"
)

// Client talks to the web API. All page fetches go through the injected
// rate limiter and carry the configured headers; the signer is applied
// to every API query.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	apiBase    string
	liveBase   string
	reflowBase string
	sign       Signer
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a new API client
func NewClient(timeout time.Duration, sign Signer, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if sign == nil {
		sign = NopSigner
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
			"Referer":         BaseURL + "/",
		},
		apiBase:    BaseURL,
		liveBase:   LiveBaseURL,
		reflowBase: ReflowBaseURL,
		sign:       sign,
		limiter:    ratelimit.Nop{},
		logger:     log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetCookie sets the cookie header used on every request
func (c *Client) SetCookie(cookie string) {
	if cookie != "" {
		c.headers["Cookie"] = cookie
	}
}

// SetLimiter installs a rate limiter for API page fetches
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	if l != nil {
		c.limiter = l
	}
}

// SetAPIBase overrides the API base URL
func (c *Client) SetAPIBase(base string) { c.apiBase = base }

// SetLiveBase overrides the live API base URL
func (c *Client) SetLiveBase(base string) { c.liveBase = base }

// SetReflowBase overrides the reflow API base URL
func (c *Client) SetReflowBase(base string) { c.reflowBase = base }

// Do performs an arbitrary request with the configured headers. The
// download engine uses this for media transfers, which bypass the API
// rate limiter.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Newf(errs.ErrorTypeNetwork, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// getJSON performs a rate-limited, signed GET against an API base and
// decodes the JSON response
func (c *Client) getJSON(ctx context.Context, base, path string, query url.Values, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	rawURL := fmt.Sprintf("%s%s?%s", base, path, SignQuery(query.Encode(), c.sign))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Newf(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Newf(errs.ErrorTypeNetwork, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.Newf(errs.ErrorTypeParsing, "failed to parse JSON: %v", err)
	}

	return nil
}

// checkResponseStatus maps HTTP status codes to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "authentication required", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "resource not found", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: resp.StatusCode}
	case resp.StatusCode >= 500:
		return &errs.Error{Type: errs.ErrorTypeServerError, Message: "server error", Code: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &errs.Error{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode), Code: resp.StatusCode}
	default:
		return nil
	}
}

// checkEnvelope validates the API-level status code carried inside the
// JSON payload. Anything non-zero is a failed page even when HTTP said 200.
func checkEnvelope(statusCode int) error {
	switch statusCode {
	case 0:
		return nil
	case 8:
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "login required", Code: statusCode}
	default:
		return &errs.Error{Type: errs.ErrorTypeServerError, Message: fmt.Sprintf("api status_code %d", statusCode), Code: statusCode}
	}
}

// FetchUserPosts fetches one page of a user's published items
func (c *Client) FetchUserPosts(ctx context.Context, secUserID string, maxCursor int64, count int) (*PostListResponse, error) {
	var resp PostListResponse
	if err := c.getJSON(ctx, c.apiBase, PostEndpoint, PostQuery(secUserID, maxCursor, count), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchUserLikes fetches one page of a user's liked items
func (c *Client) FetchUserLikes(ctx context.Context, secUserID string, maxCursor int64, count int) (*PostListResponse, error) {
	var resp PostListResponse
	if err := c.getJSON(ctx, c.apiBase, FavoriteEndpoint, FavoriteQuery(secUserID, maxCursor, count), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchItemDetail fetches a single item by id, returning the raw payload
func (c *Client) FetchItemDetail(ctx context.Context, awemeID string) (json.RawMessage, error) {
	var resp DetailResponse
	if err := c.getJSON(ctx, c.apiBase, DetailEndpoint, DetailQuery(awemeID), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	if len(resp.AwemeDetail) == 0 || string(resp.AwemeDetail) == "null" {
		return nil, &errs.Error{Type: errs.ErrorTypeNotFound, Message: fmt.Sprintf("item %s not found", awemeID)}
	}
	return resp.AwemeDetail, nil
}

// FetchMixItems fetches one page of a collection's items
func (c *Client) FetchMixItems(ctx context.Context, mixID string, cursor int64, count int) (*CursorListResponse, error) {
	var resp CursorListResponse
	if err := c.getJSON(ctx, c.apiBase, MixAwemeEndpoint, MixAwemeQuery(mixID, cursor, count), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchMixIndex fetches one page of a user's collection index
func (c *Client) FetchMixIndex(ctx context.Context, secUserID string, cursor int64, count int) (*MixListResponse, error) {
	var resp MixListResponse
	if err := c.getJSON(ctx, c.apiBase, MixListEndpoint, MixListQuery(secUserID, cursor, count), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchMusicItems fetches one page of items using a piece of music
func (c *Client) FetchMusicItems(ctx context.Context, musicID string, cursor int64, count int) (*CursorListResponse, error) {
	var resp CursorListResponse
	if err := c.getJSON(ctx, c.apiBase, MusicEndpoint, MusicQuery(musicID, cursor, count), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchUserDetail fetches a profile
func (c *Client) FetchUserDetail(ctx context.Context, secUserID string) (*User, error) {
	var resp UserDetailResponse
	if err := c.getJSON(ctx, c.apiBase, UserDetailEndpoint, UserDetailQuery(secUserID), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	if resp.User.SecUID == "" {
		return nil, &errs.Error{Type: errs.ErrorTypeNotFound, Message: fmt.Sprintf("user %s not found", secUserID)}
	}
	return &resp.User, nil
}

// FetchRoomReflow fetches a live room by room id
func (c *Client) FetchRoomReflow(ctx context.Context, roomID string) (*RoomData, error) {
	var resp ReflowResponse
	if err := c.getJSON(ctx, c.reflowBase, ReflowEndpoint, ReflowQuery(roomID), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	return &resp.Data.Room, nil
}

// FetchLiveRoom fetches a live room by web rid
func (c *Client) FetchLiveRoom(ctx context.Context, webRID string) (*RoomData, error) {
	var resp LiveEnterResponse
	if err := c.getJSON(ctx, c.liveBase, LiveEnterEndpoint, LiveEnterQuery(webRID), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp.StatusCode); err != nil {
		return nil, err
	}
	if len(resp.Data.Data) == 0 {
		return nil, &errs.Error{Type: errs.ErrorTypeNotFound, Message: fmt.Sprintf("live room %s not found", webRID)}
	}
	return &resp.Data.Data[0], nil
}

// ResolveShareURL follows the redirect chain of a share link and returns
// the final location without fetching its body
func (c *Client) ResolveShareURL(ctx context.Context, shareURL string) (string, error) {
	client := &http.Client{
		Timeout: c.httpClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	current := shareURL
	for i := 0; i < 10; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return "", errs.Newf(errs.ErrorTypeUnrecognizedLink, "invalid share link %q: %v", shareURL, err)
		}
		for key, value := range c.headers {
			req.Header.Set(key, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", errs.Newf(errs.ErrorTypeNetwork, "failed to resolve share link: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return current, nil
		}

		loc := resp.Header.Get("Location")
		if loc == "" {
			return current, nil
		}

		next, err := resp.Request.URL.Parse(loc)
		if err != nil {
			return "", errs.Newf(errs.ErrorTypeUnrecognizedLink, "bad redirect %q: %v", loc, err)
		}
		current = next.String()
	}

	return "", errs.Newf(errs.ErrorTypeUnrecognizedLink, "too many redirects resolving %q", shareURL)
}
