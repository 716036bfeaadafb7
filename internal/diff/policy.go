package diff

import "github.com/jonathan/resource-pipeline/internal/types"

// Policy decides which proposed changes may be applied without a reviewer.
type Policy interface {
	AutoApplicable(c types.ProposedChange) bool
}

// ReviewAll holds every change for review.
type ReviewAll struct{}

// AutoApplicable implements Policy.
func (ReviewAll) AutoApplicable(types.ProposedChange) bool { return false }

// AutoApply allows objective metric changes and confident, non-breaking
// content changes.
type AutoApply struct {
	Threshold float64
}

// AutoApplicable implements Policy.
func (p AutoApply) AutoApplicable(c types.ProposedChange) bool {
	if c.Kind == types.KindMetric {
		return true
	}
	return !c.IsBreaking && c.Confidence > p.Threshold
}

// PolicyFor maps a job's apply policy to a Policy.
func PolicyFor(policy types.ApplyPolicy, threshold float64) Policy {
	if policy == types.PolicyAutomatic {
		return AutoApply{Threshold: threshold}
	}
	return ReviewAll{}
}

// Partition splits changes into those the policy allows and those it holds back.
// Order is preserved within each group.
func Partition(changes []types.ProposedChange, policy Policy) (allowed, held []types.ProposedChange) {
	allowed = []types.ProposedChange{}
	held = []types.ProposedChange{}
	for _, c := range changes {
		if policy.AutoApplicable(c) {
			allowed = append(allowed, c)
		} else {
			held = append(held, c)
		}
	}
	return allowed, held
}
