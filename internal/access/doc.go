// Package access resolves a caller's credential into its effective subjects
// and evaluates permission levels against the access rules stored for an
// object.
package access
