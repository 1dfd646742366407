package wasm

// Features is a bitmask of optional WebAssembly proposals this runtime can
// enable, mirroring wazero's RuntimeConfig.WithFeatureXxx convention: each
// bit gates a specific behavior in the decoder/validator.
type Features uint64

const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSignExtensionOps
	FeatureMultiValue
	FeatureBulkMemoryOperations
	FeatureReferenceTypes
	FeatureNonTrappingFloatToIntConversion
)

// Features20191205 is the feature set of WebAssembly 1.0 (20191205): only
// mutable globals, which were already finished at that point.
const Features20191205 = FeatureMutableGlobal

// FeaturesFinished enables every proposal that has reached the "finished"
// stage as of this runtime's release.
const FeaturesFinished = FeatureMutableGlobal | FeatureSignExtensionOps |
	FeatureMultiValue | FeatureBulkMemoryOperations | FeatureReferenceTypes |
	FeatureNonTrappingFloatToIntConversion

// Get reports whether f is enabled in this set.
func (s Features) Get(f Features) bool { return s&f != 0 }

// Set returns a copy of s with f enabled or disabled.
func (s Features) Set(f Features, enabled bool) Features {
	if enabled {
		return s | f
	}
	return s &^ f
}

// Require returns an *UnsupportedFeatureError if f is not enabled in s.
func (s Features) Require(f Features, featureName string) error {
	if !s.Get(f) {
		return &UnsupportedFeatureError{Feature: featureName}
	}
	return nil
}
