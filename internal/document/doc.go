// Package document defines the identifier model, shared types, interfaces and
// error taxonomy used by the resolver and its collaborators.
package document
