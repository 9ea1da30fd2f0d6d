// Package qdrant implements storage.PointStore over the Qdrant REST API.
//
// Collections use cosine distance. Payload indexes are keyword indexes, and
// an "already exists" response maps to storage.ErrIndexExists. Requests that
// modify points wait for the write to be applied before returning.
package qdrant
