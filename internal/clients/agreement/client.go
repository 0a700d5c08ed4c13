package agreement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/utils"
)

// TaskPair identifies two tasks whose annotations should be compared.
type TaskPair struct {
	TaskFrom uuid.UUID `json:"task_from"`
	TaskTo   uuid.UUID `json:"task_to"`
}

// PairScore is one pairwise similarity result.
type PairScore struct {
	TaskFrom uuid.UUID `json:"task_from"`
	TaskTo   uuid.UUID `json:"task_to"`
	Metric   float64   `json:"agreement_score"`
}

// Scorer is the external agreement-score collaborator, consumed only by the
// consensus engine.
type Scorer interface {
	Score(ctx context.Context, jobID uuid.UUID, pairs []TaskPair) ([]PairScore, error)
}

type client struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *logger.Logger) Scorer {
	return &client{
		log:     log.With("client", "AgreementClient"),
		baseURL: utils.GetEnv("AGREEMENT_SCORE_SERVICE_HOST", "http://agreement:8000", log),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type scoreRequest struct {
	JobID uuid.UUID  `json:"job_id"`
	Pairs []TaskPair `json:"annotator_pairs"`
}

func (c *client) Score(ctx context.Context, jobID uuid.UUID, pairs []TaskPair) ([]PairScore, error) {
	body, err := json.Marshal(scoreRequest{JobID: jobID, Pairs: pairs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/agreement/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agreement score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agreement score service returned %d", resp.StatusCode)
	}

	var scores []PairScore
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, fmt.Errorf("decode agreement scores: %w", err)
	}
	return scores, nil
}
