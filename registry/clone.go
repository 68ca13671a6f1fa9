package registry

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Clone returns a deep copy of the record.
func (r *ResolutionRecord) Clone() *ResolutionRecord {
	if r == nil {
		return nil
	}

	return &ResolutionRecord{
		DIDDocument:           r.DIDDocument.Clone(),
		DIDDocumentMetadata:   cloneMap(r.DIDDocumentMetadata),
		DIDResolutionMetadata: cloneMap(r.DIDResolutionMetadata),
	}
}

// cloneMap deep-copies metadata. Nil stays nil so a round trip is exact.
func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}

	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := slices.Clone(t)
		for i := range out {
			out[i] = cloneValue(out[i])
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
