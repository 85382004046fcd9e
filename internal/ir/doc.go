// Package ir provides the field value model shared by work packages,
// changesets and the store.
//
// This package contains value types and their encodings only. It imports
// nothing internal, so every other package can depend on it.
//
// Key design constraints:
//   - NO float types anywhere - numbers are int64 (estimates are stored in
//     minutes, percentages as whole numbers)
//   - Object keys are always iterated in RFC 8785 order (SortedKeys)
//   - MarshalCanonical is the only encoding used for digests
package ir
