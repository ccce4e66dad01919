// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the document and
// revision administration endpoints. Search types live in search.go,
// ingestion types in ingestion.go.

package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/Waymark/pkg/validation"
)

// =============================================================================
// Input Limits
// =============================================================================

const (
	// MaxContentBytes is the maximum size of revision content accepted for
	// ingestion. Content beyond this is rejected before chunking to bound
	// memory on the ingest workers.
	MaxContentBytes = 8 * 1024 * 1024 // 8MB

	// MaxTitleLength is the maximum document title length.
	MaxTitleLength = 256

	// MaxDescriptionLength is the maximum document description length.
	MaxDescriptionLength = 1024

	// MaxLabelLength is the maximum revision version label length.
	MaxLabelLength = 128

	// MaxNotesLength is the maximum revision notes length.
	MaxNotesLength = 2048
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// registryValidate is the validator instance for registry datatypes.
// Initialized in init() with custom validators.
var registryValidate *validator.Validate

func init() {
	registryValidate = validator.New()

	// Source slug shape (uppercase segments joined by underscores).
	_ = registryValidate.RegisterValidation("source_slug", validateSourceSlug)

	// Canonical YYYY-MM-DD civil date.
	_ = registryValidate.RegisterValidation("dateonly", validateDateOnly)

	// Closed document category enum.
	_ = registryValidate.RegisterValidation("doc_category", validateCategory)
}

// validateSourceSlug validates the canonical source slug shape using the
// shared pkg/validation rules, so the CLI and the service reject identical
// inputs.
func validateSourceSlug(fl validator.FieldLevel) bool {
	return validation.ValidateSource(fl.Field().String()) == nil
}

// validateDateOnly validates a canonical YYYY-MM-DD date. Empty strings
// pass; combine with required when the field is mandatory.
func validateDateOnly(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	return ValidDate(s)
}

// validateCategory validates the closed category enum. Empty strings pass;
// combine with required when the field is mandatory.
func validateCategory(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	return DocumentCategory(s).Valid()
}

// =============================================================================
// Document Requests
// =============================================================================

// CreateDocumentRequest registers a new policy document.
//
// # Validation
//
//   - Source: required, canonical slug (e.g. "NPPF", "LTN_1_20")
//   - Title: required, at most MaxTitleLength characters
//   - Description: optional, at most MaxDescriptionLength characters
//   - Category: required, one of the closed DocumentCategory values
//
// # Example
//
//	req := CreateDocumentRequest{
//	    Source:   "LTN_1_20",
//	    Title:    "Cycle Infrastructure Design",
//	    Category: CategoryStandard,
//	}
type CreateDocumentRequest struct {
	Source      string           `json:"source" validate:"required,source_slug"`
	Title       string           `json:"title" validate:"required,max=256"`
	Description string           `json:"description" validate:"max=1024"`
	Category    DocumentCategory `json:"category" validate:"required,doc_category"`
}

// Validate validates the CreateDocumentRequest fields.
func (r *CreateDocumentRequest) Validate() error {
	return registryValidate.Struct(r)
}

// UpdateDocumentRequest is a metadata-only partial update. Nil fields are
// left unchanged; the source slug itself is immutable and not updatable.
type UpdateDocumentRequest struct {
	Title       *string           `json:"title,omitempty" validate:"omitempty,min=1,max=256"`
	Description *string           `json:"description,omitempty" validate:"omitempty,max=1024"`
	Category    *DocumentCategory `json:"category,omitempty" validate:"omitempty,doc_category"`
}

// Validate validates the UpdateDocumentRequest fields.
func (r *UpdateDocumentRequest) Validate() error {
	if err := registryValidate.Struct(r); err != nil {
		return err
	}
	if r.Category != nil && !r.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// Empty reports whether the update carries no changes.
func (r *UpdateDocumentRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Category == nil
}

// ListDocumentsRequest filters the document listing. Both filters are
// optional; an empty request lists everything.
type ListDocumentsRequest struct {
	Category     string `form:"category" json:"category,omitempty" validate:"doc_category"`
	SourcePrefix string `form:"source_prefix" json:"source_prefix,omitempty" validate:"max=64"`
}

// Validate validates the ListDocumentsRequest fields.
func (r *ListDocumentsRequest) Validate() error {
	return registryValidate.Struct(r)
}

// DocumentResponse is a document with its revision summaries, returned by
// the get endpoint. Revisions are ordered by effective_from descending
// (newest first).
type DocumentResponse struct {
	Document
	Revisions []RevisionSummary `json:"revisions"`
}

// RevisionSummary is the abbreviated revision listing embedded in document
// responses.
type RevisionSummary struct {
	RevisionID    string         `json:"revision_id"`
	VersionLabel  string         `json:"version_label,omitempty"`
	EffectiveFrom string         `json:"effective_from"`
	EffectiveTo   string         `json:"effective_to,omitempty"`
	Status        RevisionStatus `json:"status"`
	ChunkCount    int            `json:"chunk_count"`
}

// DocumentSummary is one entry in the document listing: the document plus
// its revision in force today, if any.
type DocumentSummary struct {
	Document
	Current *RevisionSummary `json:"current,omitempty"`
}

// ListDocumentsResponse wraps the document listing.
type ListDocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// =============================================================================
// Revision Requests
// =============================================================================

// AddRevisionRequest registers a new revision of a document and starts
// asynchronous ingestion of its content.
//
// # Validation
//
//   - VersionLabel: optional human label ("December 2024 revision")
//   - EffectiveFrom: required canonical date, first day in force
//   - EffectiveTo: optional canonical date, last day in force INCLUSIVE;
//     empty means open-ended. When set it must not precede EffectiveFrom
//     (checked in Validate, not expressible as a tag).
//   - Content: required markdown/plain text, at most MaxContentBytes
//   - Notes: optional free text
//
// # Example
//
//	req := AddRevisionRequest{
//	    VersionLabel:  "December 2024 revision",
//	    EffectiveFrom: "2024-12-12",
//	    Content:       body,
//	}
type AddRevisionRequest struct {
	VersionLabel  string `json:"version_label" validate:"max=128"`
	EffectiveFrom string `json:"effective_from" validate:"required,dateonly"`
	EffectiveTo   string `json:"effective_to" validate:"dateonly"`
	Content       string `json:"content" validate:"required"`
	Notes         string `json:"notes" validate:"max=2048"`
}

// Validate validates the AddRevisionRequest fields, including the
// cross-field range ordering and the content size bound.
func (r *AddRevisionRequest) Validate() error {
	if err := registryValidate.Struct(r); err != nil {
		return err
	}
	if len(r.Content) > MaxContentBytes {
		return ErrContentTooLarge
	}
	if r.EffectiveTo != "" && r.EffectiveTo < r.EffectiveFrom {
		return ErrInvalidDateRange
	}
	return nil
}

// AddRevisionResponse is returned from a successful revision registration.
// Ingestion runs asynchronously; poll the ingestion endpoints with the
// revision ID to follow progress. When the new revision superseded a prior
// open-ended one, the superseded fields report that side effect.
type AddRevisionResponse struct {
	Revision              Revision `json:"revision"`
	Ingestion             string   `json:"ingestion"` // status URL path for polling
	SupersededRevisionID  string   `json:"superseded_revision_id,omitempty"`
	SupersededEffectiveTo string   `json:"superseded_effective_to,omitempty"`
}

// UpdateRevisionRequest is a partial update of a revision's descriptive
// fields and dates. Nil fields are left unchanged. Date changes are
// re-validated against every other revision of the same document; setting
// EffectiveTo to the empty string makes the revision open-ended, which is
// rejected if another open-ended revision exists.
type UpdateRevisionRequest struct {
	VersionLabel  *string `json:"version_label,omitempty" validate:"omitempty,max=128"`
	EffectiveFrom *string `json:"effective_from,omitempty" validate:"omitempty,dateonly"`
	EffectiveTo   *string `json:"effective_to,omitempty" validate:"omitempty,dateonly"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=2048"`
}

// Validate validates the UpdateRevisionRequest fields. The cross-field
// range check only applies when both ends are present in the request;
// updates touching one end are checked against the stored record by the
// registry.
func (r *UpdateRevisionRequest) Validate() error {
	if err := registryValidate.Struct(r); err != nil {
		return err
	}
	if r.EffectiveFrom != nil && *r.EffectiveFrom == "" {
		return ErrInvalidDate
	}
	if r.EffectiveFrom != nil && r.EffectiveTo != nil &&
		*r.EffectiveTo != "" && *r.EffectiveTo < *r.EffectiveFrom {
		return ErrInvalidDateRange
	}
	return nil
}

// Empty reports whether the update carries no changes.
func (r *UpdateRevisionRequest) Empty() bool {
	return r.VersionLabel == nil && r.EffectiveFrom == nil &&
		r.EffectiveTo == nil && r.Notes == nil
}

// DeleteRevisionResponse reports a completed deletion. PurgedRevisionID is
// the vector purge token: every chunk tagged with it has been removed from
// the index (or queued for removal when the index was unreachable).
type DeleteRevisionResponse struct {
	Source           string `json:"source"`
	PurgedRevisionID string `json:"purged_revision_id"`
	VectorsPurged    bool   `json:"vectors_purged"`
}

// ListRevisionsResponse wraps the ordered revision listing of one document.
type ListRevisionsResponse struct {
	Source    string     `json:"source"`
	Revisions []Revision `json:"revisions"`
	Count     int        `json:"count"`
}

// =============================================================================
// Resolve Responses
// =============================================================================

// ResolveResponse is the outcome of an effective-date resolution.
type ResolveResponse struct {
	Source   string   `json:"source"`
	Date     string   `json:"date"`
	Revision Revision `json:"revision"`
}

// SnapshotResponse resolves every document as of a single date. Documents
// fall into exactly one bucket:
//
//   - InForce: revision in force on the date, keyed by source
//   - NotYetEffective: earliest revision starts after the date
//   - NoRevisionInForce: revisions exist but none covers the date (a gap,
//     or every range ended earlier)
//   - NoRevisions: document registered but nothing ingested yet
type SnapshotResponse struct {
	Date              string              `json:"date"`
	InForce           map[string]Revision `json:"in_force"`
	NotYetEffective   []string            `json:"not_yet_effective,omitempty"`
	NoRevisionInForce []string            `json:"no_revision_in_force,omitempty"`
	NoRevisions       []string            `json:"no_revisions,omitempty"`
	Count             int                 `json:"count"`
}

// =============================================================================
// Error Envelope
// =============================================================================

// ErrorResponse is the uniform error envelope for all endpoints.
//
//	{"error": "revision range overlaps an existing revision",
//	 "code": "revision_overlap",
//	 "detail": "conflicts with revision 7d5c..."}
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}
