// Package portal holds the placement portal data model: jobs, students,
// admins, notifications, shortlists and eligibility criteria.
//
// Data is the in-memory aggregate, owned by a State container that serializes
// access to it. Document is the persisted JSON form that lives at a single
// path in the remote store; Data.Document builds it and Data.ReplaceFrom
// applies one wholesale.
//
// Identifiers arrive from the web client as either JSON numbers or strings.
// They are normalized to ID (notifications) and StringID (students, admins)
// at decode time so lookups compare a single type.
package portal
