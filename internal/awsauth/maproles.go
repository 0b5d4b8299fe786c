// Package awsauth maintains mapRoles entries in the kube-system/aws-auth
// ConfigMap, the document EKS consults to map IAM roles onto cluster users
// and groups.
package awsauth

import (
	"fmt"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/yaml"
)

const (
	// ConfigMapName is the well-known aws-auth ConfigMap name.
	ConfigMapName = "aws-auth"
	// ConfigMapNamespace is where EKS expects the ConfigMap to live.
	ConfigMapNamespace = "kube-system"

	mapRolesKey = "mapRoles"
)

// ConfigMapKey locates the aws-auth ConfigMap.
var ConfigMapKey = types.NamespacedName{Namespace: ConfigMapNamespace, Name: ConfigMapName}

// MapRole is one mapRoles entry, keyed by rolearn.
type MapRole struct {
	RoleArn  string   `json:"rolearn"`
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
}

// ParseMapRoles decodes the mapRoles YAML document. An empty document is an
// empty list.
func ParseMapRoles(data string) ([]MapRole, error) {
	if data == "" {
		return nil, nil
	}
	var entries []MapRole
	if err := yaml.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse mapRoles: %w", err)
	}
	return entries, nil
}

// SerializeMapRoles encodes entries back into the mapRoles YAML document.
func SerializeMapRoles(entries []MapRole) (string, error) {
	raw, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to serialize mapRoles: %w", err)
	}
	return string(raw), nil
}

// Upsert inserts or updates the entry matching on rolearn. The returned bool
// reports whether the list changed, so an already-converged document produces
// no write.
func Upsert(entries []MapRole, entry MapRole) ([]MapRole, bool) {
	for i := range entries {
		if entries[i].RoleArn != entry.RoleArn {
			continue
		}
		if entries[i].Username == entry.Username && equalGroups(entries[i].Groups, entry.Groups) {
			return entries, false
		}
		entries[i].Username = entry.Username
		entries[i].Groups = entry.Groups
		return entries, true
	}
	return append(entries, entry), true
}

// Remove deletes the entry matching on rolearn, reporting whether anything
// was removed.
func Remove(entries []MapRole, roleArn string) ([]MapRole, bool) {
	for i := range entries {
		if entries[i].RoleArn == roleArn {
			return append(entries[:i], entries[i+1:]...), true
		}
	}
	return entries, false
}

func equalGroups(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
