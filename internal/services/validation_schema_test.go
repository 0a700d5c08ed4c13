package services

import (
	"testing"

	"github.com/kavelin/labelforge-backend/internal/types"
)

func TestSchemaForUnknownType(t *testing.T) {
	if _, err := SchemaFor("guesswork"); err == nil {
		t.Fatalf("unknown validation type accepted")
	}
}

func TestCrossSchemaRules(t *testing.T) {
	s, err := SchemaFor(types.ValidationCross)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !s.HasAnnotationPhase() || !s.ValidatorsFromAnnotators() || s.RequiresConsensus() {
		t.Fatalf("unexpected cross schema traits")
	}
	if err := s.CheckAnnotators([]*types.User{testUser(10, 0)}, 1); err == nil {
		t.Fatalf("cross validation with one annotator accepted")
	}
	if err := s.CheckAnnotators([]*types.User{testUser(10, 0), testUser(10, 0)}, 1); err != nil {
		t.Fatalf("two annotators rejected: %v", err)
	}
	if err := s.CheckValidators([]*types.User{testUser(10, 0)}); err == nil {
		t.Fatalf("cross validation with a distinct validator set accepted")
	}
	if err := s.CheckValidators(nil); err != nil {
		t.Fatalf("empty validator set rejected: %v", err)
	}
}

func TestHierarchicalSchemaRules(t *testing.T) {
	s, _ := SchemaFor(types.ValidationHierarchical)
	if !s.HasAnnotationPhase() || s.ValidatorsFromAnnotators() || s.RequiresConsensus() {
		t.Fatalf("unexpected hierarchical schema traits")
	}
	if err := s.CheckAnnotators(nil, 1); err == nil {
		t.Fatalf("hierarchical job without annotators accepted")
	}
	if err := s.CheckValidators(nil); err == nil {
		t.Fatalf("hierarchical job without validators accepted")
	}
}

func TestValidationOnlySchemaRules(t *testing.T) {
	s, _ := SchemaFor(types.ValidationOnly)
	if s.HasAnnotationPhase() {
		t.Fatalf("validation_only should have no annotation phase")
	}
	if err := s.CheckAnnotators([]*types.User{testUser(10, 0)}, 1); err == nil {
		t.Fatalf("validation_only job with annotators accepted")
	}
	if err := s.CheckValidators(nil); err == nil {
		t.Fatalf("validation_only job without validators accepted")
	}
}

func TestExtensiveCoverageSchemaRules(t *testing.T) {
	s, _ := SchemaFor(types.ValidationExtensiveCoverage)
	if !s.RequiresConsensus() {
		t.Fatalf("extensive_coverage must resolve by consensus")
	}
	if err := s.CheckAnnotators([]*types.User{testUser(10, 0), testUser(10, 0)}, 1); err == nil {
		t.Fatalf("coverage below 2 accepted")
	}
	if err := s.CheckAnnotators([]*types.User{testUser(10, 0)}, 2); err == nil {
		t.Fatalf("fewer annotators than coverage accepted")
	}
	if err := s.CheckAnnotators([]*types.User{testUser(10, 0), testUser(10, 0)}, 2); err != nil {
		t.Fatalf("valid extensive_coverage setup rejected: %v", err)
	}
	if err := s.CheckValidators(nil); err == nil {
		t.Fatalf("extensive_coverage job without validators accepted")
	}
}
