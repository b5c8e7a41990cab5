package cache

import "fmt"

// Key builders for the three logical cache tiers. Centralized so that
// invalidation patterns stay in sync with the keys they must match.

func ClusterKey(projectID, clusterName string) string {
	return fmt.Sprintf("cluster:%s:%s", projectID, clusterName)
}

func ProviderConfigsKey(projectID string) string {
	return fmt.Sprintf("providers:%s", projectID)
}

func ModelMetadataKey(clusterID string) string {
	return fmt.Sprintf("models:%s", clusterID)
}

// Invalidation patterns. Model metadata is keyed by cluster so that a change
// to a cluster's provider bindings invalidates its derived catalog too.

func ClusterPattern(projectID string) string {
	return fmt.Sprintf("cluster:%s:*", projectID)
}

func ProviderConfigsPattern(projectID string) string {
	return fmt.Sprintf("providers:%s*", projectID)
}

func ModelMetadataPattern(clusterID string) string {
	return fmt.Sprintf("models:%s*", clusterID)
}
