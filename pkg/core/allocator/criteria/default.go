package criteria

import "github.com/jakechorley/rehab-roster/pkg/core/allocator"

// Default returns the criteria used when no other set is configured
func Default() []allocator.Criterion {
	return []allocator.Criterion{
		NewPreferredPCACriterion(4, 4),
		NewFloorCriterion(2, 0),
		NewCoverageCriterion(1, 2),
	}
}

// ByName builds the named criteria with their default weights. Unknown
// names are returned so the caller can report them.
func ByName(names []string) ([]allocator.Criterion, []string) {
	var out []allocator.Criterion
	var unknown []string
	for _, name := range names {
		switch name {
		case "PreferredPCA":
			out = append(out, NewPreferredPCACriterion(4, 4))
		case "Floor":
			out = append(out, NewFloorCriterion(2, 0))
		case "Coverage":
			out = append(out, NewCoverageCriterion(1, 2))
		default:
			unknown = append(unknown, name)
		}
	}
	return out, unknown
}
