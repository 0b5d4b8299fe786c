// Package trustpolicy renders and compares IAM role trust policy documents
// for service account web identity federation.
package trustpolicy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

const policyVersion = "2012-10-17"

// Revoked is a valid trust policy that permits nothing. It replaces an
// operator-rendered document when a binding is finalized but the role itself
// is not operator-owned.
const Revoked = `{"Version":"2012-10-17","Statement":[]}`

type document struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

type statement struct {
	Effect    string                       `json:"Effect"`
	Principal principal                    `json:"Principal"`
	Action    string                       `json:"Action"`
	Condition map[string]map[string]string `json:"Condition,omitempty"`
}

type principal struct {
	Federated string `json:"Federated"`
}

// Build renders the trust policy allowing the given service account to assume
// the role through the cluster's OIDC identity provider.
func Build(providerArn, namespace, name, audience string) (string, error) {
	issuer, err := issuerFromProviderARN(providerArn)
	if err != nil {
		return "", err
	}

	doc := document{
		Version: policyVersion,
		Statement: []statement{{
			Effect:    "Allow",
			Principal: principal{Federated: providerArn},
			Action:    "sts:AssumeRoleWithWebIdentity",
			Condition: map[string]map[string]string{
				"StringEquals": {
					issuer + ":sub": fmt.Sprintf("system:serviceaccount:%s:%s", namespace, name),
					issuer + ":aud": audience,
				},
			},
		}},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render trust policy: %w", err)
	}
	return string(raw), nil
}

// Equal compares two policy documents semantically, ignoring whitespace and
// key ordering. Invalid JSON on either side compares unequal so the caller
// falls through to an update.
func Equal(a, b string) bool {
	var objA, objB interface{}

	if err := json.Unmarshal([]byte(a), &objA); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(b), &objB); err != nil {
		return false
	}

	return reflect.DeepEqual(objA, objB)
}

// issuerFromProviderARN extracts the issuer host path used in condition keys,
// e.g. arn:aws:iam::111:oidc-provider/oidc.eks.eu-west-1.amazonaws.com/id/ABC
// yields oidc.eks.eu-west-1.amazonaws.com/id/ABC.
func issuerFromProviderARN(providerArn string) (string, error) {
	parsed, err := arn.Parse(providerArn)
	if err != nil {
		return "", fmt.Errorf("invalid OIDC provider ARN %q: %w", providerArn, err)
	}
	if parsed.Service != "iam" || !strings.HasPrefix(parsed.Resource, "oidc-provider/") {
		return "", fmt.Errorf("ARN %q does not name an OIDC provider", providerArn)
	}

	issuer := strings.TrimPrefix(parsed.Resource, "oidc-provider/")
	if issuer == "" {
		return "", fmt.Errorf("ARN %q has an empty provider path", providerArn)
	}
	return issuer, nil
}
