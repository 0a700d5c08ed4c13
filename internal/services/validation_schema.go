package services

import (
	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// ValidationSchema is the closed set of validation designs a job can run
// under. One implementation per validation type keeps the branching in one
// place instead of scattered type checks.
type ValidationSchema interface {
	Type() string
	// HasAnnotationPhase reports whether annotation tasks exist at all.
	HasAnnotationPhase() bool
	// ValidatorsFromAnnotators reports whether validators are drawn from
	// the annotator pool rather than a distinct role.
	ValidatorsFromAnnotators() bool
	// RequiresConsensus reports whether machine-adjudicated agreement can
	// finish validation without a human step.
	RequiresConsensus() bool
	CheckAnnotators(annotators []*types.User, coverage int) error
	CheckValidators(validators []*types.User) error
}

// SchemaFor returns the schema for a job's validation type.
func SchemaFor(validationType string) (ValidationSchema, error) {
	switch validationType {
	case types.ValidationCross:
		return crossSchema{}, nil
	case types.ValidationHierarchical:
		return hierarchicalSchema{}, nil
	case types.ValidationOnly:
		return validationOnlySchema{}, nil
	case types.ValidationExtensiveCoverage:
		return extensiveCoverageSchema{}, nil
	default:
		return nil, apperr.NewFieldConstraint("validation_type", "unknown validation type %q", validationType)
	}
}

type crossSchema struct{}

func (crossSchema) Type() string                   { return types.ValidationCross }
func (crossSchema) HasAnnotationPhase() bool       { return true }
func (crossSchema) ValidatorsFromAnnotators() bool { return true }
func (crossSchema) RequiresConsensus() bool        { return false }

func (crossSchema) CheckAnnotators(annotators []*types.User, coverage int) error {
	// Cross validation needs at least two annotators so nobody has to
	// review their own pages.
	if len(annotators) < 2 {
		return apperr.NewFieldConstraint("annotators", "cross validation requires at least 2 annotators, got %d", len(annotators))
	}
	return nil
}

func (crossSchema) CheckValidators(validators []*types.User) error {
	if len(validators) != 0 {
		return apperr.NewFieldConstraint("validators", "cross validation draws validators from the annotator pool; the validator set must be empty")
	}
	return nil
}

type hierarchicalSchema struct{}

func (hierarchicalSchema) Type() string                   { return types.ValidationHierarchical }
func (hierarchicalSchema) HasAnnotationPhase() bool       { return true }
func (hierarchicalSchema) ValidatorsFromAnnotators() bool { return false }
func (hierarchicalSchema) RequiresConsensus() bool        { return false }

func (hierarchicalSchema) CheckAnnotators(annotators []*types.User, coverage int) error {
	if len(annotators) == 0 {
		return apperr.NewFieldConstraint("annotators", "hierarchical validation requires at least one annotator")
	}
	return nil
}

func (hierarchicalSchema) CheckValidators(validators []*types.User) error {
	if len(validators) == 0 {
		return apperr.NewFieldConstraint("validators", "hierarchical validation requires at least one validator")
	}
	return nil
}

type validationOnlySchema struct{}

func (validationOnlySchema) Type() string                   { return types.ValidationOnly }
func (validationOnlySchema) HasAnnotationPhase() bool       { return false }
func (validationOnlySchema) ValidatorsFromAnnotators() bool { return false }
func (validationOnlySchema) RequiresConsensus() bool        { return false }

func (validationOnlySchema) CheckAnnotators(annotators []*types.User, coverage int) error {
	if len(annotators) != 0 {
		return apperr.NewFieldConstraint("annotators", "validation_only jobs have no annotation phase; the annotator set must be empty")
	}
	return nil
}

func (validationOnlySchema) CheckValidators(validators []*types.User) error {
	if len(validators) == 0 {
		return apperr.NewFieldConstraint("validators", "validation_only jobs require at least one validator")
	}
	return nil
}

type extensiveCoverageSchema struct{}

func (extensiveCoverageSchema) Type() string                   { return types.ValidationExtensiveCoverage }
func (extensiveCoverageSchema) HasAnnotationPhase() bool       { return true }
func (extensiveCoverageSchema) ValidatorsFromAnnotators() bool { return false }
func (extensiveCoverageSchema) RequiresConsensus() bool        { return true }

func (extensiveCoverageSchema) CheckAnnotators(annotators []*types.User, coverage int) error {
	if coverage < 2 {
		return apperr.NewFieldConstraint("extensive_coverage", "extensive_coverage jobs require a coverage of at least 2, got %d", coverage)
	}
	if len(annotators) < coverage {
		return apperr.NewFieldConstraint("annotators", "extensive_coverage %d requires at least %d annotators, got %d", coverage, coverage, len(annotators))
	}
	return nil
}

func (extensiveCoverageSchema) CheckValidators(validators []*types.User) error {
	if len(validators) == 0 {
		return apperr.NewFieldConstraint("validators", "extensive_coverage jobs require at least one validator")
	}
	return nil
}
