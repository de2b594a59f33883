package governance

import (
	"strings"

	"github.com/semops-labs/som/core/pkg/contracts"
)

const minDescriptionLen = 10

// ValidateProposal checks completeness for the proposal's type. Warnings
// flag recommended-but-missing fields and never fail the result.
func (m *Manager) ValidateProposal(p *contracts.SchemaChangeProposal) *contracts.ValidationResult {
	result := contracts.OK()
	now := m.clock()

	fail := func(rule, message string) {
		result.AddError(contracts.ValidationError{
			Message:      message,
			ViolatedRule: rule,
			Category:     contracts.CategoryValidation,
			Timestamp:    now,
		})
	}
	warn := func(rule, message string) {
		result.AddWarning(contracts.ValidationError{
			Message:      message,
			ViolatedRule: rule,
			Category:     contracts.CategoryValidation,
			Timestamp:    now,
		})
	}

	if len(p.ReferenceDocuments) == 0 {
		fail("proposal_reference_documents_required", "at least one reference document is required")
	}
	if p.ImpactAnalysis == nil {
		switch p.ProposalType {
		case contracts.ProposalAddConstraint, contracts.ProposalModifyType, contracts.ProposalDeprecateType:
			fail("proposal_impact_analysis_required", "impact analysis is required for this proposal type")
		default:
			warn("proposal_impact_analysis_recommended", "impact analysis is recommended")
		}
	}

	switch p.ProposalType {
	case contracts.ProposalAddHolonType:
		def := p.HolonTypeDefinition
		if def == nil {
			fail("holon_type_definition_required", "holon type definition is required")
			break
		}
		if len(p.ExampleUseCases) == 0 {
			fail("holon_type_example_use_case_required", "at least one example use case is required")
		}
		if p.CollisionAnalysis == nil {
			fail("holon_type_collision_analysis_required", "collision analysis is required")
		}
		if strings.TrimSpace(def.Type) == "" {
			fail("holon_type_name_required", "definition type name is required")
		}
		if len(strings.TrimSpace(def.Description)) < minDescriptionLen {
			fail("holon_type_description_too_short", "definition description must be at least 10 characters")
		}
		if len(def.SourceDocuments) == 0 {
			fail("holon_type_source_documents_required", "definition requires at least one source document")
		}
		if len(def.RequiredProperties) == 0 {
			warn("holon_type_required_properties_recommended", "at least one required property is recommended")
		}

	case contracts.ProposalAddConstraint:
		def := p.ConstraintDefinition
		if def == nil {
			fail("constraint_definition_required", "constraint definition is required")
			break
		}
		if strings.TrimSpace(def.Name) == "" {
			fail("constraint_name_required", "constraint name is required")
		}
		if len(strings.TrimSpace(def.Definition)) < minDescriptionLen {
			fail("constraint_definition_too_short", "constraint definition must be at least 10 characters")
		}
		if strings.TrimSpace(def.ValidationLogic) == "" {
			fail("constraint_validation_logic_required", "constraint validation logic is required")
		}
		if len(def.DefiningDocuments) == 0 {
			fail("constraint_defining_documents_required", "constraint requires defining documents")
		}

	case contracts.ProposalAddMeasure:
		def := p.MeasureDefinition
		if def == nil {
			fail("measure_definition_required", "measure definition is required")
			break
		}
		if len(strings.TrimSpace(def.Description)) < minDescriptionLen {
			fail("measure_description_too_short", "measure description must be at least 10 characters")
		}
		if strings.TrimSpace(def.Calculation) == "" {
			fail("measure_calculation_required", "measure calculation is required")
		}
		if len(def.Outputs) == 0 {
			fail("measure_outputs_required", "measure outputs are required")
		}
		if len(def.DefiningDocuments) == 0 {
			fail("measure_defining_documents_required", "measure requires defining documents")
		}

	case contracts.ProposalAddLens:
		def := p.LensDefinition
		if def == nil {
			fail("lens_definition_required", "lens definition is required")
			break
		}
		if len(strings.TrimSpace(def.Description)) < minDescriptionLen {
			fail("lens_description_too_short", "lens description must be at least 10 characters")
		}
		if strings.TrimSpace(def.Logic) == "" {
			fail("lens_logic_required", "lens logic is required")
		}
		if len(def.Outputs) == 0 {
			fail("lens_outputs_required", "lens outputs are required")
		}
		if len(def.DefiningDocuments) == 0 {
			fail("lens_defining_documents_required", "lens requires defining documents")
		}

	case contracts.ProposalModifyType, contracts.ProposalDeprecateType:
		if strings.TrimSpace(p.TargetType) == "" {
			fail("target_type_required", "target type is required")
		}
	}

	return result
}
