package ranking

import "review-orchestrator/internal/domain"

// Clusters is the explicit adjacency built once per prioritization call:
// parent suggestion ID -> member IDs (parent first, then children). Related
// suggestions whose parent is absent from the input set are orphans and are
// left out of every group.
type Clusters map[string][]string

// BuildClusters derives the cluster adjacency from the suggestions'
// parent/related links.
func BuildClusters(suggestions []domain.CodeSuggestion) Clusters {
	present := make(map[string]struct{}, len(suggestions))
	for _, s := range suggestions {
		present[s.ID] = struct{}{}
	}

	clusters := make(Clusters)
	for _, s := range suggestions {
		if !s.IsParent() {
			continue
		}
		members := []string{s.ID}
		for _, childID := range s.ClusteringInformation.RelatedSuggestionsIDs {
			if _, ok := present[childID]; ok {
				members = append(members, childID)
			}
		}
		clusters[s.ID] = members
	}

	// Children may reference a parent that did not list them back.
	for _, s := range suggestions {
		if !s.IsRelated() {
			continue
		}
		parentID := s.ClusteringInformation.ParentSuggestionID
		members, ok := clusters[parentID]
		if !ok {
			if _, exists := present[parentID]; !exists {
				continue // orphan
			}
			members = []string{parentID}
		}
		if !contains(members, s.ID) {
			members = append(members, s.ID)
		}
		clusters[parentID] = members
	}

	return clusters
}

// SplitRelated pulls clustering children out of the limiting pool. Orphaned
// children (parent absent from the set) stay in the pool so they are never
// silently lost.
func SplitRelated(suggestions []domain.CodeSuggestion) (pool, related []domain.CodeSuggestion) {
	present := make(map[string]struct{}, len(suggestions))
	for _, s := range suggestions {
		present[s.ID] = struct{}{}
	}

	for _, s := range suggestions {
		if s.IsRelated() {
			if _, ok := present[s.ClusteringInformation.ParentSuggestionID]; ok {
				related = append(related, s)
				continue
			}
		}
		pool = append(pool, s)
	}
	return pool, related
}

// ReadmitRelated re-admits exempted children whose parent survived limiting,
// stamping them prioritized_by_clustering. Children whose parent did not
// survive come back stamped discarded_by_clustering so no suggestion
// vanishes from the decision set.
func ReadmitRelated(related, prioritized []domain.CodeSuggestion) (readmitted, excluded []domain.CodeSuggestion) {
	surviving := make(map[string]struct{}, len(prioritized))
	for _, s := range prioritized {
		surviving[s.ID] = struct{}{}
	}

	for _, s := range related {
		if _, ok := surviving[s.ClusteringInformation.ParentSuggestionID]; ok {
			s.PriorityStatus = domain.PriorityStatusPrioritizedByClustering
			readmitted = append(readmitted, s)
		} else {
			s.PriorityStatus = domain.PriorityStatusDiscardedByClustering
			s.DeliveryStatus = domain.DeliveryStatusNotSent
			excluded = append(excluded, s)
		}
	}
	return readmitted, excluded
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
