// Package picker はGoogle Photos Picker APIとの連携機能を提供する。
// 保存済み資格情報から得たアクセストークンでセッション作成・状態確認・選択済みメディア取得を行う。
package picker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// defaultEndpoint はPicker APIのベースURL。
	defaultEndpoint = "https://photospicker.googleapis.com/v1"
	// pageSize はメディア一覧取得1回あたりの件数。
	pageSize = 50
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 4 << 20
)

var (
	// ErrUpstream はPicker APIの呼び出しに失敗した場合に返される。
	ErrUpstream = errors.New("picker api request failed")
	// ErrSessionNotFound は指定したセッションが存在しない場合に返される。
	ErrSessionNotFound = errors.New("picker session not found")
	// ErrItemsNotReady はユーザーがまだメディアを選択していない場合に返される。
	ErrItemsNotReady = errors.New("picker media items not selected yet")
)

// Session はPickerセッションを表す。
type Session struct {
	ID            string `json:"sessionId"`
	PickerURI     string `json:"pickerUri"`
	MediaItemsSet bool   `json:"mediaItemsSet"`
	ExpireTime    string `json:"expireTime,omitempty"`
	PollInterval  string `json:"pollInterval,omitempty"`
}

// MediaItem はユーザーが選択したメディアを表す。
type MediaItem struct {
	ID            string          `json:"id"`
	Filename      string          `json:"filename"`
	MimeType      string          `json:"mimeType"`
	MediaMetadata json.RawMessage `json:"mediaMetadata,omitempty"`
	BaseURL       string          `json:"baseUrl"`
	Type          string          `json:"type"`
	CreateTime    string          `json:"createTime"`
}

// MediaItemsPage はメディア一覧の1ページ分。
type MediaItemsPage struct {
	MediaItems    []MediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// Client はPicker APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// WithEndpoint はエンドポイントを差し替えたClientを返す。
func (c *Client) WithEndpoint(endpoint string) *Client {
	cp := *c
	cp.endpoint = strings.TrimRight(endpoint, "/")
	return &cp
}

type apiSession struct {
	ID            string `json:"id"`
	PickerURI     string `json:"pickerUri"`
	MediaItemsSet bool   `json:"mediaItemsSet"`
	ExpireTime    string `json:"expireTime"`
	PollingConfig struct {
		PollInterval string `json:"pollInterval"`
	} `json:"pollingConfig"`
}

func (s *apiSession) toSession() *Session {
	return &Session{
		ID:            s.ID,
		PickerURI:     s.PickerURI,
		MediaItemsSet: s.MediaItemsSet,
		ExpireTime:    s.ExpireTime,
		PollInterval:  s.PollingConfig.PollInterval,
	}
}

// CreateSession は新しいPickerセッションを作成する。
func (c *Client) CreateSession(ctx context.Context, accessToken string) (*Session, error) {
	var out apiSession
	if err := c.do(ctx, http.MethodPost, c.endpoint+"/sessions", accessToken, []byte("{}"), &out); err != nil {
		return nil, err
	}
	return out.toSession(), nil
}

// GetSession はPickerセッションの状態を取得する。
func (c *Client) GetSession(ctx context.Context, accessToken, sessionID string) (*Session, error) {
	var out apiSession
	if err := c.do(ctx, http.MethodGet, c.endpoint+"/sessions/"+url.PathEscape(sessionID), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out.toSession(), nil
}

// ListMediaItems はセッションで選択されたメディアを1ページ取得する。
// baseUrlにパラメータが無い場合はフル解像度取得用に"=d"を付与する。
func (c *Client) ListMediaItems(ctx context.Context, accessToken, sessionID, pageToken string) (*MediaItemsPage, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var out struct {
		MediaItems []struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			CreateTime string `json:"createTime"`
			MediaFile  struct {
				BaseURL           string          `json:"baseUrl"`
				MimeType          string          `json:"mimeType"`
				Filename          string          `json:"filename"`
				MediaFileMetadata json.RawMessage `json:"mediaFileMetadata"`
			} `json:"mediaFile"`
		} `json:"mediaItems"`
		NextPageToken string `json:"nextPageToken"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint+"/mediaItems?"+q.Encode(), accessToken, nil, &out); err != nil {
		return nil, err
	}

	page := &MediaItemsPage{
		MediaItems:    make([]MediaItem, 0, len(out.MediaItems)),
		NextPageToken: out.NextPageToken,
	}
	for _, item := range out.MediaItems {
		page.MediaItems = append(page.MediaItems, MediaItem{
			ID:            item.ID,
			Filename:      item.MediaFile.Filename,
			MimeType:      item.MediaFile.MimeType,
			MediaMetadata: item.MediaFile.MediaFileMetadata,
			BaseURL:       fullResolutionURL(item.MediaFile.BaseURL),
			Type:          item.Type,
			CreateTime:    item.CreateTime,
		})
	}
	return page, nil
}

func fullResolutionURL(baseURL string) string {
	if baseURL == "" || strings.Contains(baseURL, "=") {
		return baseURL
	}
	return baseURL + "=d"
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, reqURL, accessToken string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Picker APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %w", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)

		c.logger.Warn("Picker APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
			slog.String("status", apiErr.Error.Status),
		)

		switch {
		case resp.StatusCode == http.StatusBadRequest && apiErr.Error.Status == "FAILED_PRECONDITION":
			return ErrItemsNotReady
		case resp.StatusCode == http.StatusNotFound:
			return ErrSessionNotFound
		default:
			return fmt.Errorf("%w: Picker APIがステータス %d を返しました", ErrUpstream, resp.StatusCode)
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: レスポンスJSONのパースに失敗しました: %w", ErrUpstream, err)
	}
	return nil
}
