package awsauth

import (
	"context"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/retry"

	"github.com/cloudbind/iam-binding-operator/internal/k8sclient"
)

// Manager applies mapRoles changes to the aws-auth ConfigMap with
// read-modify-write semantics. Conflicts with concurrent writers are retried
// against a fresh read.
type Manager struct {
	store k8sclient.StoreClient
	log   logr.Logger
}

// NewManager creates a Manager on top of the store client.
func NewManager(store k8sclient.StoreClient, log logr.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// EnsureEntry makes the aws-auth ConfigMap contain exactly the given entry
// for its rolearn. A matching entry produces no write.
func (m *Manager) EnsureEntry(ctx context.Context, entry MapRole) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := m.store.GetConfigMap(ctx, ConfigMapKey)
		if err != nil {
			return err
		}

		entries, err := ParseMapRoles(cm.Data[mapRolesKey])
		if err != nil {
			return err
		}

		updated, changed := Upsert(entries, entry)
		if !changed {
			return nil
		}

		serialized, err := SerializeMapRoles(updated)
		if err != nil {
			return err
		}
		if cm.Data == nil {
			cm.Data = map[string]string{}
		}
		cm.Data[mapRolesKey] = serialized

		if err := m.store.UpdateConfigMap(ctx, cm); err != nil {
			return err
		}
		m.log.Info("Updated aws-auth mapRoles entry", "rolearn", entry.RoleArn, "username", entry.Username)
		return nil
	})
}

// RemoveEntry deletes the mapRoles entry for the rolearn. A missing ConfigMap
// or entry counts as already clean.
func (m *Manager) RemoveEntry(ctx context.Context, roleArn string) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := m.store.GetConfigMap(ctx, ConfigMapKey)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return err
		}

		entries, err := ParseMapRoles(cm.Data[mapRolesKey])
		if err != nil {
			return err
		}

		updated, changed := Remove(entries, roleArn)
		if !changed {
			return nil
		}

		serialized, err := SerializeMapRoles(updated)
		if err != nil {
			return err
		}
		cm.Data[mapRolesKey] = serialized

		if err := m.store.UpdateConfigMap(ctx, cm); err != nil {
			return err
		}
		m.log.Info("Removed aws-auth mapRoles entry", "rolearn", roleArn)
		return nil
	})
}

// HasEntry reports whether the aws-auth ConfigMap carries an entry for the
// rolearn, used to decide whether drift correction is needed.
func (m *Manager) HasEntry(ctx context.Context, entry MapRole) (bool, error) {
	cm, err := m.store.GetConfigMap(ctx, ConfigMapKey)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	entries, err := ParseMapRoles(cm.Data[mapRolesKey])
	if err != nil {
		return false, err
	}

	for i := range entries {
		if entries[i].RoleArn == entry.RoleArn &&
			entries[i].Username == entry.Username &&
			equalGroups(entries[i].Groups, entry.Groups) {
			return true, nil
		}
	}
	return false, nil
}
