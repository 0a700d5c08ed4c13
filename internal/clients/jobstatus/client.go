package jobstatus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/logger"
)

// Client is the external job-status collaborator. A failed update must roll
// back the caller's local status change, so failures surface as
// *apperr.JobUpdateError.
type Client interface {
	UpdateJobStatus(ctx context.Context, callbackURL, status, tenant, token string) error
}

type client struct {
	log  *logger.Logger
	http *http.Client
}

func NewClient(log *logger.Logger) Client {
	return &client{
		log:  log.With("client", "JobStatusClient"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type updatePayload struct {
	Status string `json:"status"`
}

func (c *client) UpdateJobStatus(ctx context.Context, callbackURL, status, tenant, token string) error {
	body, err := json.Marshal(updatePayload{Status: status})
	if err != nil {
		return &apperr.JobUpdateError{CallbackURL: callbackURL, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, callbackURL, bytes.NewReader(body))
	if err != nil {
		return &apperr.JobUpdateError{CallbackURL: callbackURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set("X-Current-Tenant", tenant)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.JobUpdateError{CallbackURL: callbackURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.JobUpdateError{
			CallbackURL: callbackURL,
			Err:         fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	c.log.Debug("job status pushed", "url", callbackURL, "status", status)
	return nil
}
