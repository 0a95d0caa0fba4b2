package spirv

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// Merge combines the interfaces of the stages of one pipeline. Descriptor
// resources with the same (set, binding) become one entry whose stage mask
// and access are the union of the stages; their kind and array size must
// agree. Stage inputs, stage outputs and push-constant blocks are kept per
// stage. The result is ordered by kind class, set, binding and location.
func Merge(stages ...[]Resource) ([]Resource, error) {
	type slot struct{ set, binding uint32 }
	index := map[slot]int{}
	var out []Resource
	for _, resources := range stages {
		for _, r := range resources {
			if !r.Kind.IsDescriptor() {
				out = append(out, r)
				continue
			}
			s := slot{r.Set, r.Binding}
			i, ok := index[s]
			if !ok {
				index[s] = len(out)
				out = append(out, r)
				continue
			}
			m := &out[i]
			if m.Kind != r.Kind {
				return nil, errors.Wrapf(driver.ErrValidation,
					"spirv: set %d binding %d is a %s in one stage and a %s in another", r.Set, r.Binding, m.Kind, r.Kind)
			}
			if m.ArraySize != r.ArraySize {
				return nil, errors.Wrapf(driver.ErrValidation,
					"spirv: set %d binding %d has array size %d and %d", r.Set, r.Binding, m.ArraySize, r.ArraySize)
			}
			m.Stages |= r.Stages
			m.Access |= r.Access
			if m.Name == "" {
				m.Name = r.Name
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Resource) int {
		return cmp.Or(
			cmp.Compare(kindClass(a.Kind), kindClass(b.Kind)),
			cmp.Compare(a.Set, b.Set),
			cmp.Compare(a.Binding, b.Binding),
			cmp.Compare(a.Stages, b.Stages),
			cmp.Compare(a.Location, b.Location),
		)
	})
	return out, nil
}

func kindClass(k ResourceKind) int {
	switch {
	case k.IsDescriptor():
		return 0
	case k == PushConstantBuffer:
		return 1
	case k == StageInput:
		return 2
	}
	return 3
}

// SetBindings groups the descriptor resources of a merged interface by set
// and returns the layout bindings of each set, ordered by binding. Sets the
// pipeline does not use are returned empty up to the highest used set.
func SetBindings(resources []Resource) [][]driver.DescriptorSetLayoutBinding {
	var sets [][]driver.DescriptorSetLayoutBinding
	for _, r := range resources {
		t, ok := r.Kind.DescriptorType()
		if !ok {
			continue
		}
		for int(r.Set) >= len(sets) {
			sets = append(sets, nil)
		}
		count := r.ArraySize
		if count == 0 {
			// Runtime-sized arrays bind a single descriptor unless
			// descriptor indexing is enabled.
			count = 1
		}
		sets[r.Set] = append(sets[r.Set], driver.DescriptorSetLayoutBinding{
			Binding: r.Binding,
			Type:    t,
			Count:   count,
			Stages:  r.Stages,
		})
	}
	for _, s := range sets {
		slices.SortFunc(s, func(a, b driver.DescriptorSetLayoutBinding) int { return cmp.Compare(a.Binding, b.Binding) })
	}
	return sets
}
