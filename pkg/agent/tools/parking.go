package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
)

const parkingCodeReference = "MCO § 295-403-2"

// parkingRule is one row of the minimum off-street parking table. Exactly
// one of perSqFt, perSeats, or perUnit is set.
type parkingRule struct {
	perSqFt  float64
	perSeats float64
	perUnit  bool
	notes    string
}

var parkingRules = map[string]parkingRule{
	"restaurant": {perSqFt: 300, perSeats: 4,
		notes: "Seating capacity governs when provided; floor area otherwise."},
	"tavern": {perSqFt: 300, perSeats: 4,
		notes: "Seating capacity governs when provided; floor area otherwise."},
	"retail":     {perSqFt: 500},
	"office":     {perSqFt: 400},
	"medical":    {perSqFt: 250},
	"industrial": {perSqFt: 1000},
	"warehouse":  {perSqFt: 2000},
	"residential": {perUnit: true,
		notes: "One space per dwelling unit."},
	"multi-family": {perUnit: true,
		notes: "One space per dwelling unit."},
}

// ParkingTool computes minimum required off-street parking. Pure arithmetic
// over the ratio table; no I/O.
type ParkingTool struct {
	BaseTool
}

// NewParkingTool creates the parking calculator.
func NewParkingTool() *ParkingTool {
	return &ParkingTool{
		BaseTool: NewBaseTool("calculate_parking",
			"Calculate minimum required off-street parking spaces for a use in a zoning district"),
	}
}

func (p *ParkingTool) Declaration() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"useType": {Type: "string",
				Description: "Land use, e.g. restaurant, retail, office, industrial, residential"},
			"grossFloorArea":  {Type: "number", Description: "Gross floor area in square feet"},
			"zoningDistrict":  {Type: "string", Description: "Zoning district code, e.g. LB2, C9A"},
			"seatingCapacity": {Type: "number", Description: "Seats, for assembly and dining uses"},
			"units":           {Type: "number", Description: "Dwelling units, for residential uses"},
		},
		Required: []string{"useType", "grossFloorArea", "zoningDistrict"},
	}
}

func (p *ParkingTool) Call(_ context.Context, args map[string]any) (map[string]any, error) {
	useType := strings.ToLower(strings.TrimSpace(stringArg(args, "useType")))
	district := strings.ToUpper(strings.TrimSpace(stringArg(args, "zoningDistrict")))
	gfa, okGFA := floatArg(args, "grossFloorArea")

	if useType == "" || district == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "useType and zoningDistrict are required", nil)
	}
	if !okGFA || gfa <= 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "grossFloorArea must be a positive number", nil)
	}

	rule, ok := parkingRules[useType]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown use type %q", useType), nil)
	}

	// Downtown districts carry no parking minimums.
	if strings.HasPrefix(district, "C9") || strings.HasPrefix(district, "D") {
		return map[string]any{
			"success":        true,
			"requiredSpaces": 0,
			"ratio":          "none",
			"calculation":    fmt.Sprintf("district %s is exempt from minimum parking requirements", district),
			"notes":          "Downtown districts have no off-street parking minimums.",
			"codeReference":  parkingCodeReference,
		}, nil
	}

	var spaces int
	var ratio, calculation string
	switch {
	case rule.perUnit:
		units, okUnits := floatArg(args, "units")
		if !okUnits || units <= 0 {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput,
				"units is required for residential uses", nil)
		}
		spaces = int(math.Ceil(units))
		ratio = "1 space per dwelling unit"
		calculation = fmt.Sprintf("%d units × 1 space = %d spaces", int(units), spaces)
	case rule.perSeats > 0 && hasArg(args, "seatingCapacity"):
		seats, okSeats := floatArg(args, "seatingCapacity")
		if !okSeats || seats <= 0 {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput,
				"seatingCapacity must be a positive number", nil)
		}
		spaces = int(math.Ceil(seats / rule.perSeats))
		ratio = fmt.Sprintf("1 space per %d seats", int(rule.perSeats))
		calculation = fmt.Sprintf("%d seats ÷ %d = %d spaces", int(seats), int(rule.perSeats), spaces)
	default:
		spaces = int(math.Ceil(gfa / rule.perSqFt))
		ratio = fmt.Sprintf("1 space per %d sq ft", int(rule.perSqFt))
		calculation = fmt.Sprintf("%d sq ft ÷ %d = %d spaces", int(gfa), int(rule.perSqFt), spaces)
	}

	return map[string]any{
		"success":        true,
		"requiredSpaces": spaces,
		"ratio":          ratio,
		"calculation":    calculation,
		"notes":          rule.notes,
		"codeReference":  parkingCodeReference,
	}, nil
}

// Succeeded: the calculator either errors on bad input or produces a result.
func (p *ParkingTool) Succeeded(result map[string]any) bool {
	_, ok := result["requiredSpaces"]
	return ok
}

func hasArg(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}
