package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// RuleIdentifier is the content identifier of a compiled ruleset. Two equal
// identifiers mean the compiled outputs are interchangeable; it is the only
// input to cache reuse decisions.
//
// Empty fields stand for absent version tags and are legal.
type RuleIdentifier struct {
	Name                 string `json:"name"`
	TDSEtag              string `json:"tdsEtag"`
	TempListEtag         string `json:"tempListEtag,omitempty"`
	AllowListEtag        string `json:"allowListEtag,omitempty"`
	UnprotectedSitesHash string `json:"unprotectedSitesHash,omitempty"`
}

// NewRuleIdentifier builds an identifier for the named ruleset from the
// tracker-data tag and the protection lists in effect.
func NewRuleIdentifier(name, tdsEtag string, p ProtectionLists) RuleIdentifier {
	return RuleIdentifier{
		Name:                 name,
		TDSEtag:              tdsEtag,
		TempListEtag:         p.TempListEtag,
		AllowListEtag:        p.AllowListEtag,
		UnprotectedSitesHash: p.UnprotectedSitesHash(),
	}
}

// IsZero reports whether the identifier is unset.
func (id RuleIdentifier) IsZero() bool { return id == RuleIdentifier{} }

// Equal reports whether two identifiers describe the same compiled output.
func (id RuleIdentifier) Equal(other RuleIdentifier) bool { return id == other }

// Digest returns the hex sha256 of the RFC 8785 canonical JSON form of the
// identifier. It is used as the content-addressed cache key.
func (id RuleIdentifier) Digest() string {
	raw, err := json.Marshal(id)
	if err != nil {
		// A struct of strings always marshals.
		panic(fmt.Errorf("marshal rule identifier: %w", err))
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		panic(fmt.Errorf("canonicalize rule identifier: %w", err))
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// String returns a compact human-readable form for logs.
func (id RuleIdentifier) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", id.Name, id.TDSEtag, id.TempListEtag, id.AllowListEtag, id.UnprotectedSitesHash)
}
