// Package models contains GORM persistence models for the ledger tables.
// They are kept apart from the domain records so the domain layer stays free
// of ORM tags; ToDomain and FromDomain convert between the two.
//
// Amounts are stored as NUMERIC(18,2) and surface in the domain as raw
// amounts, so the reconciliation engine parses database rows the same way it
// parses JSON snapshots.
package models
