// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "errors"

// Sentinel errors for the registry service. Handlers map these onto HTTP
// status codes and stable error codes; everything else is a 500.
var (
	// ErrDocumentNotFound indicates the source slug is not registered.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentExists indicates a document with that source is already registered.
	ErrDocumentExists = errors.New("document already registered")

	// ErrDocumentHasRevisions indicates a document delete was attempted while
	// revisions still exist for it.
	ErrDocumentHasRevisions = errors.New("document still has revisions")

	// ErrRevisionNotFound indicates no revision matches the given identifier.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrRevisionExists indicates the document already has a revision with the
	// same effective_from date.
	ErrRevisionExists = errors.New("revision already exists for that effective date")

	// ErrRevisionOverlap indicates the new revision's effective range overlaps
	// an existing revision. Ranges are inclusive at both ends; an empty
	// effective_to extends to infinity.
	ErrRevisionOverlap = errors.New("revision range overlaps an existing revision")

	// ErrSoleRevision indicates a delete was refused because it targeted the
	// only remaining revision of a document.
	ErrSoleRevision = errors.New("cannot delete the sole revision of a document")

	// ErrNoRevisionInForce indicates the document exists but no revision covers
	// the requested date (before first publication, or inside a gap).
	ErrNoRevisionInForce = errors.New("no revision in force on that date")

	// ErrInvalidSource indicates a source slug failed shape validation.
	ErrInvalidSource = errors.New("invalid source slug")

	// ErrInvalidCategory indicates a document category outside the closed enum.
	ErrInvalidCategory = errors.New("invalid document category")

	// ErrInvalidDate indicates a date string was not a valid YYYY-MM-DD value.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

	// ErrInvalidDateRange indicates effective_to precedes effective_from.
	ErrInvalidDateRange = errors.New("effective_to precedes effective_from")

	// ErrContentTooLarge indicates revision content exceeded MaxContentBytes.
	ErrContentTooLarge = errors.New("revision content exceeds size limit")

	// ErrInvalidTransition indicates a revision status change outside the
	// allowed state machine.
	ErrInvalidTransition = errors.New("invalid revision status transition")

	// ErrIngestInProgress indicates an ingestion job for the revision is
	// already queued or running.
	ErrIngestInProgress = errors.New("ingestion already in progress for revision")

	// ErrIngestionNotFound indicates no ingestion job exists for the revision.
	ErrIngestionNotFound = errors.New("no ingestion job for that revision")

	// ErrExtractionFailed indicates text extraction or chunking failed for a
	// revision's content.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrEmbeddingFailed indicates the embedding backend rejected or failed
	// a request.
	ErrEmbeddingFailed = errors.New("embedding request failed")

	// ErrIndexWriteFailed indicates the vector index rejected a batch write.
	// Partial vectors for the run are purged before this is reported.
	ErrIndexWriteFailed = errors.New("vector index write failed")

	// ErrSectionNotFound indicates the resolved revision has no chunks for the
	// requested section reference.
	ErrSectionNotFound = errors.New("section not found")

	// ErrCorruptRecord indicates a stored record failed its integrity check.
	ErrCorruptRecord = errors.New("corrupt store record")

	// ErrAnalyticsDisabled indicates the usage analytics sink is not configured.
	ErrAnalyticsDisabled = errors.New("analytics not configured")
)
