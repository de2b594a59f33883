package schema

import (
	"github.com/semops-labs/som/core/pkg/contracts"
)

const baselineDocument = "som-core-baseline"

func props(names ...string) []contracts.PropertyDefinition {
	out := make([]contracts.PropertyDefinition, 0, len(names))
	for _, n := range names {
		out = append(out, contracts.PropertyDefinition{Name: n, Type: "string"})
	}
	return out
}

// baselineHolonTypes describes the built-in holon model. Property lists
// mirror the typed property records in contracts.
func baselineHolonTypes() []*contracts.HolonTypeDefinition {
	return []*contracts.HolonTypeDefinition{
		{
			Type:               string(contracts.HolonPerson),
			Description:        "A member of the force: active duty, reserve, civilian, or contractor.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("edipi", "service_numbers", "name", "date_of_birth", "service_branch", "designator_rating", "category"),
		},
		{
			Type:               string(contracts.HolonPosition),
			Description:        "A billet a person can occupy.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("title"),
			OptionalProperties: props("billet_code", "paygrade", "location"),
		},
		{
			Type:               string(contracts.HolonOrganization),
			Description:        "A unit or command in the organizational hierarchy.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name"),
			OptionalProperties: props("uic", "echelon"),
		},
		{
			Type:               string(contracts.HolonQualification),
			Description:        "A credential identified by NEC, PQS, course code, or certification id.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name", "validity_period_days", "renewal_rules"),
			OptionalProperties: props("nec", "pqs_id", "course_code", "certification_id"),
		},
		{
			Type:               string(contracts.HolonMission),
			Description:        "A planned or executing operation.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("operation_name", "operation_number", "mission_type", "classification", "start_date"),
			OptionalProperties: props("end_date", "phase"),
		},
		{
			Type:               string(contracts.HolonCapability),
			Description:        "Something a mission can employ.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name"),
			OptionalProperties: props("description", "category"),
		},
		{
			Type:               string(contracts.HolonAsset),
			Description:        "A platform or materiel item that supports missions.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name"),
			OptionalProperties: props("asset_type", "serial_number"),
		},
		{
			Type:               string(contracts.HolonObjective),
			Description:        "A measurable outcome owned by a person or organization.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("title"),
			OptionalProperties: props("description", "target_date"),
		},
		{
			Type:               string(contracts.HolonLOE),
			Description:        "A line of effort grouping objectives over a timeframe.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name", "timeframe_start"),
			OptionalProperties: props("description", "sponsor_echelon", "timeframe_end"),
		},
		{
			Type:               string(contracts.HolonInitiative),
			Description:        "A sponsored body of work moving through stages.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name", "scope", "sponsor", "stage"),
		},
		{
			Type:               string(contracts.HolonTask),
			Description:        "A unit of work with priority, status, and a due date.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("description", "task_type", "priority", "status", "due_date"),
			OptionalProperties: props("assignee"),
		},
		{
			Type:               string(contracts.HolonSystem),
			Description:        "A deployed system of record.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name"),
			OptionalProperties: props("version"),
		},
		{
			Type:               string(contracts.HolonMeasure),
			Description:        "A metric definition objectives are measured by.",
			SourceDocuments:    []string{baselineDocument},
			RequiredProperties: props("name"),
			OptionalProperties: props("description", "calculation", "unit", "outputs"),
		},
	}
}

func baselineRelationshipTypes() []*contracts.RelationshipTypeDefinition {
	return []*contracts.RelationshipTypeDefinition{
		{
			Type:            string(contracts.RelOccupies),
			Description:     "Person occupies Position.",
			SourceTypes:     []contracts.HolonType{contracts.HolonPerson},
			TargetTypes:     []contracts.HolonType{contracts.HolonPosition},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelHasQual),
			Description:     "Person holds Qualification.",
			SourceTypes:     []contracts.HolonType{contracts.HolonPerson},
			TargetTypes:     []contracts.HolonType{contracts.HolonQualification},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelRequiredFor),
			Description:     "Qualification is required for Position.",
			SourceTypes:     []contracts.HolonType{contracts.HolonQualification},
			TargetTypes:     []contracts.HolonType{contracts.HolonPosition},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelHeldBy),
			Description:     "Qualification is held by Person.",
			SourceTypes:     []contracts.HolonType{contracts.HolonQualification},
			TargetTypes:     []contracts.HolonType{contracts.HolonPerson},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelUses),
			Description:     "Mission uses Capability.",
			SourceTypes:     []contracts.HolonType{contracts.HolonMission},
			TargetTypes:     []contracts.HolonType{contracts.HolonCapability},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelSupports),
			Description:     "Asset supports Mission.",
			SourceTypes:     []contracts.HolonType{contracts.HolonAsset},
			TargetTypes:     []contracts.HolonType{contracts.HolonMission},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelOwnedBy),
			Description:     "Objective is owned by Person or Organization.",
			SourceTypes:     []contracts.HolonType{contracts.HolonObjective},
			TargetTypes:     []contracts.HolonType{contracts.HolonPerson, contracts.HolonOrganization},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelGroupedUnder),
			Description:     "Objective is grouped under a line of effort.",
			SourceTypes:     []contracts.HolonType{contracts.HolonObjective},
			TargetTypes:     []contracts.HolonType{contracts.HolonLOE},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelDependsOn),
			Description:     "Acyclic dependency between peers of the same type.",
			SourceTypes:     []contracts.HolonType{contracts.HolonTask, contracts.HolonObjective, contracts.HolonQualification},
			TargetTypes:     []contracts.HolonType{contracts.HolonTask, contracts.HolonObjective, contracts.HolonQualification},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelPartOf),
			Description:     "Task is part of Initiative.",
			SourceTypes:     []contracts.HolonType{contracts.HolonTask},
			TargetTypes:     []contracts.HolonType{contracts.HolonInitiative},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelAlignedTo),
			Description:     "Initiative is aligned to Objective.",
			SourceTypes:     []contracts.HolonType{contracts.HolonInitiative},
			TargetTypes:     []contracts.HolonType{contracts.HolonObjective},
			SourceDocuments: []string{baselineDocument},
		},
		{
			Type:            string(contracts.RelMeasuredBy),
			Description:     "Objective is measured by Measure.",
			SourceTypes:     []contracts.HolonType{contracts.HolonObjective},
			TargetTypes:     []contracts.HolonType{contracts.HolonMeasure},
			SourceDocuments: []string{baselineDocument},
		},
	}
}
