package services

import (
	"fmt"
	"strings"

	"github.com/kavelin/labelforge-backend/internal/clients/agreement"
	"github.com/kavelin/labelforge-backend/internal/config"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// AgreementResult is the outcome of a pairwise agreement evaluation.
type AgreementResult struct {
	Reached bool
	Scores  []*types.AgreementScore
}

// ConsensusEngine compares annotators' independent work on the same pages
// for extensive-coverage jobs. Agreement is reached iff every pairwise
// score meets the configured minimum.
type ConsensusEngine interface {
	Evaluate(dbc dbctx.Context, job *types.Job, validationTask *types.Task, siblings []*types.Task) (*AgreementResult, error)
}

type consensusEngine struct {
	log       *logger.Logger
	cfg       config.Settings
	scorer    agreement.Scorer
	scoreRepo repos.AgreementScoreRepo
}

func NewConsensusEngine(
	baseLog *logger.Logger,
	cfg config.Settings,
	scorer agreement.Scorer,
	scoreRepo repos.AgreementScoreRepo,
) ConsensusEngine {
	return &consensusEngine{
		log:       baseLog.With("service", "ConsensusEngine"),
		cfg:       cfg,
		scorer:    scorer,
		scoreRepo: scoreRepo,
	}
}

func (e *consensusEngine) Evaluate(dbc dbctx.Context, job *types.Job, validationTask *types.Task, siblings []*types.Task) (*AgreementResult, error) {
	// Only annotation tasks over the same file with overlapping pages
	// take part in the comparison.
	var candidates []*types.Task
	for _, t := range siblings {
		if t.IsValidation || t.FileID != validationTask.FileID {
			continue
		}
		if len(pagesDiff(t.Pages, pagesDiff(t.Pages, validationTask.Pages))) == 0 {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) < 2 {
		return &AgreementResult{Reached: false}, nil
	}

	var pairs []agreement.TaskPair
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			from, to := candidates[i].ID, candidates[j].ID
			// Canonical order: a pair is never stored in both directions.
			if strings.Compare(from.String(), to.String()) > 0 {
				from, to = to, from
			}
			pairs = append(pairs, agreement.TaskPair{TaskFrom: from, TaskTo: to})
		}
	}

	results, err := e.scorer.Score(dbc.Ctx, job.ID, pairs)
	if err != nil {
		return nil, fmt.Errorf("score task pairs: %w", err)
	}

	scores := make([]*types.AgreementScore, 0, len(results))
	reached := len(results) == len(pairs)
	for _, r := range results {
		from, to := r.TaskFrom, r.TaskTo
		if strings.Compare(from.String(), to.String()) > 0 {
			from, to = to, from
		}
		scores = append(scores, &types.AgreementScore{
			JobID:    job.ID,
			TaskFrom: from,
			TaskTo:   to,
			Metric:   r.Metric,
		})
		if r.Metric < e.cfg.AgreementThreshold {
			reached = false
		}
	}
	if _, err := e.scoreRepo.Create(dbc.Ctx, dbc.Tx, scores); err != nil {
		return nil, fmt.Errorf("persist agreement scores: %w", err)
	}

	e.log.Info("agreement evaluated",
		"job_id", job.ID, "validation_task", validationTask.ID,
		"pairs", len(pairs), "reached", reached)
	return &AgreementResult{Reached: reached, Scores: scores}, nil
}
