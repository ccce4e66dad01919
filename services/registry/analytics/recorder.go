// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics records registry usage to InfluxDB.
//
// The recorder is optional: a nil *Recorder is a valid no-op, so callers
// never branch on whether analytics is configured. Recording failures are
// logged and swallowed; usage accounting must never fail the operation it
// measures.
package analytics

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

const (
	// measurement holds every usage point; operations are distinguished
	// by the operation tag.
	measurement = "registry_usage"

	defaultUsageDays = 7
	maxUsageDays     = 90

	// writeTimeout bounds a single point write so a hung InfluxDB cannot
	// pin request goroutines.
	writeTimeout = 3 * time.Second
)

// Operation tags a usage point with the registry surface that served it.
type Operation string

const (
	OperationResolve Operation = "resolve"
	OperationSearch  Operation = "search"
	OperationSection Operation = "section"
	OperationIngest  Operation = "ingest"
)

// Outcome tags a usage point with how the operation ended.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// OutcomeOf maps an operation error to its outcome tag.
func OutcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder writes usage points and answers aggregate usage queries.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	logger   *slog.Logger
}

// NewRecorder creates a recorder against the given InfluxDB.
func NewRecorder(cfg Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	org := cmp.Or(cfg.Org, "aleutian-policy")
	bucket := cmp.Or(cfg.Bucket, "registry-usage")

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
		logger:   logger.With(slog.String("component", "usage_recorder")),
	}
}

// NewRecorderFromEnv builds a recorder from INFLUXDB_URL, INFLUXDB_TOKEN,
// INFLUXDB_ORG and INFLUXDB_BUCKET. Returns nil (analytics disabled) when
// URL or token is unset.
func NewRecorderFromEnv(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	url := os.Getenv("INFLUXDB_URL")
	token := os.Getenv("INFLUXDB_TOKEN")
	if url == "" || token == "" {
		logger.Info("usage analytics disabled, INFLUXDB_URL or INFLUXDB_TOKEN not set")
		return nil
	}
	return NewRecorder(Config{
		URL:    url,
		Token:  token,
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}, logger)
}

// Enabled reports whether usage points are being recorded.
func (r *Recorder) Enabled() bool {
	return r != nil
}

// Record writes one usage point. Safe on a nil recorder. Failures are
// logged, never returned: the measured operation already succeeded or
// failed on its own terms.
//
// The write is detached from the caller's cancellation so a client that
// disconnects right after the response does not lose the point.
func (r *Recorder) Record(ctx context.Context, operation Operation, source string, outcome Outcome, duration time.Duration, results int) {
	if r == nil {
		return
	}

	tags := map[string]string{
		"operation": string(operation),
		"outcome":   string(outcome),
	}
	if source != "" {
		tags["source"] = source
	}
	p := influxdb2.NewPoint(measurement, tags, map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"results":     results,
	}, time.Now().UTC())

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.writeAPI.WritePoint(writeCtx, p); err != nil {
		r.logger.Warn("usage point write failed",
			slog.String("operation", string(operation)),
			slog.Any("error", err))
	}
}

// Usage aggregates request counts per operation per day over the last
// `days` days.
//
// # Outputs
//
//	datatypes.UsageResponse - Buckets sorted by day then operation.
//	error - datatypes.ErrAnalyticsDisabled when no recorder is configured,
//	or the query failure.
func (r *Recorder) Usage(ctx context.Context, days int) (datatypes.UsageResponse, error) {
	if r == nil {
		return datatypes.UsageResponse{}, datatypes.ErrAnalyticsDisabled
	}
	if days <= 0 {
		days = defaultUsageDays
	}
	if days > maxUsageDays {
		days = maxUsageDays
	}

	// One count per point: points carry two fields, so the count runs on
	// duration_ms alone. timeSrc keeps the window start as the bucket day.
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r._field == "duration_ms")
		  |> aggregateWindow(every: 1d, fn: count, createEmpty: false, timeSrc: "_start")
	`, r.bucket, days, measurement)

	result, err := r.queryAPI.Query(ctx, flux)
	if err != nil {
		return datatypes.UsageResponse{}, fmt.Errorf("usage query: %w", err)
	}
	if result == nil {
		return datatypes.UsageResponse{Days: days, Buckets: []datatypes.UsageBucket{}}, nil
	}
	return aggregateUsage(result, days)
}

// Close releases the underlying client. Safe on a nil recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.client.Close()
}

// fluxRows is the slice of api.QueryTableResult the aggregation walks.
type fluxRows interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
}

// aggregateUsage folds per-series daily counts into per-operation daily
// buckets. Series arrive split by the full tag set (operation, source,
// outcome), so counts for the same operation and day are summed.
func aggregateUsage(rows fluxRows, days int) (datatypes.UsageResponse, error) {
	counts := make(map[string]map[string]int64)
	for rows.Next() {
		rec := rows.Record()
		count, ok := rec.Value().(int64)
		if !ok {
			continue
		}
		op, _ := rec.ValueByKey("operation").(string)
		if op == "" {
			op = "unknown"
		}
		day := rec.Time().UTC().Format(datatypes.DateLayout)
		if counts[day] == nil {
			counts[day] = make(map[string]int64)
		}
		counts[day][op] += count
	}
	if err := rows.Err(); err != nil {
		return datatypes.UsageResponse{}, fmt.Errorf("usage rows: %w", err)
	}

	resp := datatypes.UsageResponse{
		Days:    days,
		Buckets: []datatypes.UsageBucket{},
	}
	for _, day := range slices.Sorted(maps.Keys(counts)) {
		for _, op := range slices.Sorted(maps.Keys(counts[day])) {
			count := counts[day][op]
			resp.Buckets = append(resp.Buckets, datatypes.UsageBucket{
				Day:       day,
				Operation: op,
				Count:     count,
			})
			resp.Total += count
		}
	}
	return resp, nil
}
