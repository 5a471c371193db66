package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/rlm-engine/run"
)

// WikiArtifacts bundles every wiki-mode synthesis document (spec.md §4.7
// "Wiki synthesis").
type WikiArtifacts struct {
	IndexMD              []byte
	ModuleIndexMD        []byte
	ArchitectureSummaryMD []byte
}

type wikiNodeRef struct {
	NodeID string
	Path   string
	Module string
}

// collectWikiNodeArtifacts gathers every result artifact of kind
// wiki_node, deduping by path and ordering deterministically by node ID.
// Presence on disk is not re-validated (spec.md §9 open question,
// resolved in SPEC_FULL.md §9/DESIGN.md: trust the recorded index).
func collectWikiNodeArtifacts(results map[string]run.Result) []wikiNodeRef {
	seen := map[string]bool{}
	var refs []wikiNodeRef
	nodeIDs := make([]string, 0, len(results))
	for id := range results {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, id := range nodeIDs {
		for _, a := range results[id].Artifacts {
			if a.Kind != run.ArtifactWikiNode || seen[a.Path] {
				continue
			}
			seen[a.Path] = true
			refs = append(refs, wikiNodeRef{NodeID: id, Path: a.Path, Module: firstPathSegment(a.Path)})
		}
	}
	return refs
}

// BuildWiki renders the wiki index, module index, and architecture
// summary (spec.md §4.7 "Wiki synthesis").
func BuildWiki(r run.Run, results map[string]run.Result) WikiArtifacts {
	refs := collectWikiNodeArtifacts(results)

	moduleCounts := map[string]int{}
	for _, ref := range refs {
		moduleCounts[ref.Module]++
	}
	modules := make([]string, 0, len(moduleCounts))
	for m := range moduleCounts {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	return WikiArtifacts{
		IndexMD:               buildWikiIndex(refs, modules),
		ModuleIndexMD:         buildModuleIndex(modules, moduleCounts),
		ArchitectureSummaryMD: buildArchitectureSummary(r, results),
	}
}

func buildWikiIndex(refs []wikiNodeRef, modules []string) []byte {
	var b strings.Builder
	b.WriteString("# Wiki Index\n\n")
	b.WriteString("See [module-index.md](module-index.md) and [architecture-summary.md](architecture-summary.md).\n\n")
	b.WriteString("## Nodes\n\n")
	for _, ref := range refs {
		fmt.Fprintf(&b, "- [%s](%s) (module: %s)\n", ref.NodeID, ref.Path, ref.Module)
	}
	return []byte(b.String())
}

func buildModuleIndex(modules []string, counts map[string]int) []byte {
	var b strings.Builder
	b.WriteString("# Module Index\n\n")
	for _, m := range modules {
		name := m
		if name == "" {
			name = "(root)"
		}
		fmt.Fprintf(&b, "- %s: %d node(s)\n", name, counts[m])
	}
	return []byte(b.String())
}

func buildArchitectureSummary(r run.Run, results map[string]run.Result) []byte {
	var b strings.Builder
	b.WriteString("# Architecture Summary\n\n")
	fmt.Fprintf(&b, "Objective: %s\n\n", r.Objective)

	tags := ObjectiveTags(r.Objective)
	if len(tags) > 0 {
		fmt.Fprintf(&b, "Focus tags: %s\n\n", strings.Join(tags, ", "))
	} else {
		b.WriteString("Focus tags: (none matched)\n\n")
	}

	refs := collectWikiNodeArtifacts(results)
	fmt.Fprintf(&b, "Coverage: %d node document(s) across %d module(s).\n\n", len(refs), countDistinctModules(refs))

	b.WriteString("## Result summaries\n\n")
	nodeIDs := make([]string, 0, len(results))
	for id := range results {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	if len(nodeIDs) > 30 {
		nodeIDs = nodeIDs[:30]
	}
	for _, id := range nodeIDs {
		fmt.Fprintf(&b, "- %s: %s\n", id, results[id].Summary)
	}
	return []byte(b.String())
}

func countDistinctModules(refs []wikiNodeRef) int {
	set := map[string]bool{}
	for _, ref := range refs {
		set[ref.Module] = true
	}
	return len(set)
}
