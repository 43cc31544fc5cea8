package modulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// blockPayload is the wire form of one block in the content store's course
// structure API.
type blockPayload struct {
	UsageKey       string          `json:"usage_key"`
	BlockType      string          `json:"block_type"`
	DisplayName    string          `json:"display_name"`
	Graded         bool            `json:"graded"`
	CompletionMode string          `json:"completion_mode"`
	EditedOn       string          `json:"edited_on"`
	Children       []*blockPayload `json:"children"`
}

func (p *blockPayload) toXBlock() *XBlock {
	mode := CompletionMode(p.CompletionMode)
	if mode == "" {
		mode = CompletionModeUnknown
	}
	block := &XBlock{
		UsageKey:       p.UsageKey,
		BlockType:      p.BlockType,
		DisplayName:    p.DisplayName,
		Graded:         p.Graded,
		CompletionMode: mode,
		EditedOn:       p.EditedOn,
	}
	for _, child := range p.Children {
		block.Children = append(block.Children, child.toXBlock())
	}
	return block
}

// HTTPModuleStore reads course structures from the content store's HTTP API.
type HTTPModuleStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPModuleStore creates an HTTPModuleStore.
func NewHTTPModuleStore(baseURL string) *HTTPModuleStore {
	return &HTTPModuleStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetCourse fetches the full course tree rooted at the course block.
func (s *HTTPModuleStore) GetCourse(ctx context.Context, courseKey string) (*XBlock, error) {
	var payload blockPayload
	if err := s.get(ctx, "/api/content/v1/course_tree/"+url.PathEscape(courseKey), &payload); err != nil {
		return nil, err
	}
	return payload.toXBlock(), nil
}

// GetDetachedBlocks fetches the course's blocks not attached to the tree.
func (s *HTTPModuleStore) GetDetachedBlocks(ctx context.Context, courseKey string) ([]*XBlock, error) {
	var payload []*blockPayload
	path := "/api/content/v1/detached_blocks/" + url.PathEscape(courseKey) +
		"?types=" + url.QueryEscape(strings.Join(DetachedBlockTypes(), ","))
	if err := s.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	blocks := make([]*XBlock, 0, len(payload))
	for _, p := range payload {
		blocks = append(blocks, p.toXBlock())
	}
	return blocks, nil
}

func (s *HTTPModuleStore) get(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create content store request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call content store at %s%s: %w", s.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("content store returned status %d for %s: %s", resp.StatusCode, path, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
