// Package identity defines the identity-store collaborator contract consumed
// by authentication tree nodes, plus an in-memory implementation used by
// tests and single-process deployments.
//
// Cedar treats identity storage as an external concern: nodes look up
// subjects, read and stage attribute changes, and persist them through the
// narrow Store interface. Directory adapters (LDAP, RDBMS) implement Store
// outside this module.
package identity
