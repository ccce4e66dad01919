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

// =============================================================================
// Usage Analytics
// =============================================================================

// UsageBucket is one operation's request count on one day.
type UsageBucket struct {
	Day       string `json:"day"`
	Operation string `json:"operation"`
	Count     int64  `json:"count"`
}

// UsageResponse aggregates registry traffic per operation per day over the
// requested window.
type UsageResponse struct {
	Days    int           `json:"days"`
	Buckets []UsageBucket `json:"buckets"`
	Total   int64         `json:"total"`
}
