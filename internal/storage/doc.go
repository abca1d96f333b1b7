// Package storage persists generated application-package records.
//
// Two drivers share one Store interface: "file" appends JSON Lines and
// needs nothing beyond the filesystem; "sqlite" keeps a queryable table
// in a single database file. Open returns (nil, nil) when storage is
// disabled so callers can treat persistence as optional.
package storage
