// Package app hosts the relying-party HTTP surface of the delegated
// account recovery flow: token issuance, the provider's save-token
// callback, local invalidation, and the well-known configuration document.
package app
