// Package processor performs the optional JSON-LD checks on credentials.
package processor

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/piprate/json-gold/ld"

	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
)

// ErrUndefinedTerms is returned when a document uses properties that its
// @context does not define.
var ErrUndefinedTerms = errors.New("JSON-LD document has undefined terms")

// ProcessorOpt represents an option for JSON-LD processing.
type ProcessorOpt func(*ProcessorOptions)

// ProcessorOptions holds configuration for JSON-LD processing.
type ProcessorOptions struct {
	documentLoader ld.DocumentLoader
}

// WithDocumentLoader sets the document loader for JSON-LD processing.
func WithDocumentLoader(loader ld.DocumentLoader) ProcessorOpt {
	return func(p *ProcessorOptions) {
		p.documentLoader = loader
	}
}

// defaultDocumentLoader is a shared caching loader to prevent repeated fetches across function calls.
var defaultDocumentLoader ld.DocumentLoader

func init() {
	innerLoader := ld.NewDefaultDocumentLoader(nil)
	defaultDocumentLoader = ld.NewCachingDocumentLoader(innerLoader)
}

// ValidateJSONLD compacts doc against its own @context and fails when any
// property is dropped on the way, i.e. it has no mapping in the context.
func ValidateJSONLD(doc jsonmap.JSONMap, opts ...ProcessorOpt) error {
	options := &ProcessorOptions{documentLoader: defaultDocumentLoader}
	for _, opt := range opts {
		opt(options)
	}

	normalized, err := doc.Normalize()
	if err != nil {
		return fmt.Errorf("failed to normalize document: %w", err)
	}

	ctx, ok := normalized["@context"]
	if !ok {
		return fmt.Errorf("%w: @context is missing", ErrUndefinedTerms)
	}

	ldOptions := ld.NewJsonLdOptions("")
	ldOptions.ProcessingMode = ld.JsonLd_1_1
	ldOptions.DocumentLoader = options.documentLoader

	compacted, err := ld.NewJsonLdProcessor().Compact(map[string]interface{}(normalized), map[string]interface{}{"@context": ctx}, ldOptions)
	if err != nil {
		return fmt.Errorf("failed to compact JSON-LD document: %w", err)
	}

	var dropped []string
	collectDropped("", normalized, compacted, &dropped)
	if len(dropped) > 0 {
		sort.Strings(dropped)
		return fmt.Errorf("%w: %s", ErrUndefinedTerms, strings.Join(dropped, ", "))
	}

	return nil
}

// collectDropped records every key of original that is missing from compacted.
// Keywords are skipped; nested objects are compared only when both sides are
// still objects after compaction.
func collectDropped(path string, original, compacted map[string]interface{}, dropped *[]string) {
	for k, v := range original {
		if strings.HasPrefix(k, "@") {
			continue
		}

		cv, ok := compacted[k]
		if !ok {
			*dropped = append(*dropped, path+k)
			continue
		}

		switch ov := v.(type) {
		case map[string]interface{}:
			if cm, ok := cv.(map[string]interface{}); ok {
				collectDropped(path+k+".", ov, cm, dropped)
			}
		case []interface{}:
			cs, ok := cv.([]interface{})
			if !ok || len(cs) != len(ov) {
				continue
			}
			for i := range ov {
				om, ok1 := ov[i].(map[string]interface{})
				cm, ok2 := cs[i].(map[string]interface{})
				if ok1 && ok2 {
					collectDropped(fmt.Sprintf("%s%s[%d].", path, k, i), om, cm, dropped)
				}
			}
		}
	}
}
