// Package auth implements the fail-closed token gate in front of the
// data providers. The policy is a two-variant type, RequireToken or
// OpenAccess, built by FromSecret, which treats a blank secret as
// open so an empty string can never masquerade as a configured one.
// Token placement rules (header or body, never a URL query parameter)
// are enforced by the API layer.
package auth
