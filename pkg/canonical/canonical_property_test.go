//go:build property
// +build property

// Package canonical_test contains property-based tests for
// canonicalization determinism.
package canonical_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/semops-labs/som/core/pkg/canonical"
)

// TestCanonicalHashDeterminism verifies content hashing is deterministic.
// Property: Hash(obj) == Hash(obj) for any obj.
func TestCanonicalHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hashing is deterministic", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}
			if len(obj) == 0 {
				return true
			}

			h1, err1 := canonical.Hash(obj)
			h2, err2 := canonical.Hash(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestCanonicalFormIgnoresInsertionOrder verifies two maps with the same
// entries canonicalize identically regardless of construction order.
// Property: Marshal(m) == Marshal(reverse-built m).
func TestCanonicalFormIgnoresInsertionOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("insertion order is invisible", prop.ForAll(
		func(keys []string, values []string) bool {
			n := len(keys)
			if len(values) < n {
				n = len(values)
			}
			// First occurrence wins so both construction orders hold the
			// same entries.
			type entry struct{ k, v string }
			seen := make(map[string]bool, n)
			entries := make([]entry, 0, n)
			for i := 0; i < n; i++ {
				if seen[keys[i]] {
					continue
				}
				seen[keys[i]] = true
				entries = append(entries, entry{keys[i], values[i]})
			}

			forward := make(map[string]any, len(entries))
			backward := make(map[string]any, len(entries))
			for _, e := range entries {
				forward[e.k] = e.v
			}
			for i := len(entries) - 1; i >= 0; i-- {
				backward[entries[i].k] = entries[i].v
			}

			c1, err1 := canonical.MarshalString(forward)
			c2, err2 := canonical.MarshalString(backward)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return c1 == c2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
