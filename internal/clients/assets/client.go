package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/utils"
)

// FileMetadata describes a physical document as known to the asset
// collaborator.
type FileMetadata struct {
	FileID      uuid.UUID `json:"id"`
	PagesNumber int       `json:"pages"`
	Bucket      string    `json:"bucket"`
	Path        string    `json:"path"`
}

// Client supplies pages_number and storage location for file ids. Consumed
// at job creation and wherever a manifest needs the physical file's
// location.
type Client interface {
	GetFiles(ctx context.Context, tenant string, fileIDs []uuid.UUID) ([]FileMetadata, error)
}

type client struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *logger.Logger) Client {
	return &client{
		log:     log.With("client", "AssetsClient"),
		baseURL: utils.GetEnv("ASSETS_SERVICE_HOST", "http://assets:8080", log),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *client) GetFiles(ctx context.Context, tenant string, fileIDs []uuid.UUID) ([]FileMetadata, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/datasets/files", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for _, id := range fileIDs {
		q.Add("id", id.String())
	}
	req.URL.RawQuery = q.Encode()
	if tenant != "" {
		req.Header.Set("X-Current-Tenant", tenant)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assets service returned %d", resp.StatusCode)
	}

	var files []FileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode file metadata: %w", err)
	}
	return files, nil
}
