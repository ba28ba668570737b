package domain

import (
	"fmt"
	"strings"
)

// Asset identifies a ledger asset by code and issuer. The native asset has an
// empty issuer and the code "XLM". Two assets are equal when both fields match.
type Asset struct {
	Code   string
	Issuer string
}

// NativeAsset is the ledger's native asset.
var NativeAsset = Asset{Code: "XLM"}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a.Issuer == ""
}

// String renders the asset in the "CODE:ISSUER" form used by Horizon, or
// "native".
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.Code + ":" + a.Issuer
}

// ParseAsset parses the Horizon canonical asset form ("native" or
// "CODE:ISSUER").
func ParseAsset(s string) (Asset, error) {
	if s == "native" {
		return NativeAsset, nil
	}
	code, issuer, ok := strings.Cut(s, ":")
	if !ok || code == "" || issuer == "" {
		return Asset{}, fmt.Errorf("parse asset %q: expected CODE:ISSUER", s)
	}
	return Asset{Code: code, Issuer: issuer}, nil
}

// RecognizedAsset is the closed set of tokens the governance ledger accounts
// for. Anything else is ignored by classification.
type RecognizedAsset string

const (
	AssetAQUA        RecognizedAsset = "AQUA"
	AssetICE         RecognizedAsset = "ICE"
	AssetGovernICE   RecognizedAsset = "governICE"
	AssetUpvoteICE   RecognizedAsset = "upvoteICE"
	AssetDownvoteICE RecognizedAsset = "downvoteICE"
)

func (r RecognizedAsset) String() string { return string(r) }

// IsGovernanceToken reports whether r is the base governance token (the only
// asset that can be locked).
func (r RecognizedAsset) IsGovernanceToken() bool {
	return r == AssetAQUA
}

// AssetRegistry maps concrete (code, issuer) pairs to recognized assets.
type AssetRegistry struct {
	byAsset map[Asset]RecognizedAsset
	byName  map[RecognizedAsset]Asset
}

// NewAssetRegistry builds a registry from the governance token issuer and the
// ICE token issuer. All ICE derivatives share one issuer.
func NewAssetRegistry(aquaIssuer, iceIssuer string) *AssetRegistry {
	r := &AssetRegistry{
		byAsset: make(map[Asset]RecognizedAsset),
		byName:  make(map[RecognizedAsset]Asset),
	}
	r.add(AssetAQUA, aquaIssuer)
	for _, name := range []RecognizedAsset{AssetICE, AssetGovernICE, AssetUpvoteICE, AssetDownvoteICE} {
		r.add(name, iceIssuer)
	}
	return r
}

func (r *AssetRegistry) add(name RecognizedAsset, issuer string) {
	a := Asset{Code: string(name), Issuer: issuer}
	r.byAsset[a] = name
	r.byName[name] = a
}

// Recognize returns the recognized asset for a, if any.
func (r *AssetRegistry) Recognize(a Asset) (RecognizedAsset, bool) {
	name, ok := r.byAsset[a]
	return name, ok
}

// Asset returns the concrete asset for a recognized name.
func (r *AssetRegistry) Asset(name RecognizedAsset) (Asset, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Lookup resolves a recognized asset name such as "AQUA" or "upvoteICE".
func (r *AssetRegistry) Lookup(name string) (Asset, error) {
	a, ok := r.byName[RecognizedAsset(name)]
	if !ok {
		return Asset{}, fmt.Errorf("unknown asset %q: %w", name, ErrNotFound)
	}
	return a, nil
}

// GovernanceToken returns the concrete governance token asset.
func (r *AssetRegistry) GovernanceToken() Asset {
	return r.byName[AssetAQUA]
}
