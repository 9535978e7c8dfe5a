package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/port/registry"
)

// CompareService computes subject and context set differences between two
// registries. Comparison is a pure function of two snapshots; it never
// mutates either side.
type CompareService struct {
	registries *registry.Set
}

// NewCompareService creates a CompareService.
func NewCompareService(registries *registry.Set) *CompareService {
	return &CompareService{registries: registries}
}

// CompareRegistries diffs the subject sets of two registries' default
// contexts, and their context sets.
func (s *CompareService) CompareRegistries(ctx context.Context, source, target string) (*schema.RegistryDiff, error) {
	src, err := s.registries.Get(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}
	dst, err := s.registries.Get(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}

	srcSubjects, err := src.ListSubjects(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list source subjects: %w", err)
	}
	dstSubjects, err := dst.ListSubjects(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list target subjects: %w", err)
	}

	diff := &schema.RegistryDiff{
		Source:   source,
		Target:   target,
		Subjects: Diff(srcSubjects, dstSubjects),
	}

	// Context listing is optional surface on some registries; a missing
	// endpoint leaves the context diff empty rather than failing the compare.
	srcContexts, srcErr := src.ListContexts(ctx)
	dstContexts, dstErr := dst.ListContexts(ctx)
	if srcErr == nil && dstErr == nil {
		diff.Contexts = Diff(srcContexts, dstContexts)
	}

	return diff, nil
}

// CompareContexts diffs the subject sets of one context on each registry.
// Comparing two contexts of the same registry is allowed.
func (s *CompareService) CompareContexts(ctx context.Context, source, sourceCtx, target, targetCtx string) (*schema.RegistryDiff, error) {
	src, err := s.registries.Get(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}
	dst, err := s.registries.Get(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}

	srcSubjects, err := src.ListSubjects(ctx, sourceCtx)
	if err != nil {
		return nil, fmt.Errorf("list source subjects: %w", err)
	}
	dstSubjects, err := dst.ListSubjects(ctx, targetCtx)
	if err != nil {
		return nil, fmt.Errorf("list target subjects: %w", err)
	}

	return &schema.RegistryDiff{
		Source:   source + "/" + displayContext(sourceCtx),
		Target:   target + "/" + displayContext(targetCtx),
		Subjects: Diff(srcSubjects, dstSubjects),
	}, nil
}

func displayContext(sctx string) string {
	if sctx == "" {
		return schema.DefaultContext
	}
	return sctx
}

// Diff partitions two string sets into source-only, target-only, and common,
// each sorted for deterministic output.
func Diff(source, target []string) schema.SetDiff {
	inSource := make(map[string]bool, len(source))
	for _, s := range source {
		inSource[s] = true
	}
	inTarget := make(map[string]bool, len(target))
	for _, t := range target {
		inTarget[t] = true
	}

	diff := schema.SetDiff{
		SourceOnly: []string{},
		TargetOnly: []string{},
		Common:     []string{},
	}
	for s := range inSource {
		if inTarget[s] {
			diff.Common = append(diff.Common, s)
		} else {
			diff.SourceOnly = append(diff.SourceOnly, s)
		}
	}
	for t := range inTarget {
		if !inSource[t] {
			diff.TargetOnly = append(diff.TargetOnly, t)
		}
	}

	sort.Strings(diff.SourceOnly)
	sort.Strings(diff.TargetOnly)
	sort.Strings(diff.Common)
	return diff
}
