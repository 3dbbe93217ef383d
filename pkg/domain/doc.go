// Package domain holds the records, identities, and error taxonomy shared by
// every layer of the registry. It has no dependencies on storage or transport.
package domain
