// Package core provides the business logic for ESG archive ingestion.
//
// An upload is a ZIP archive holding any mix of CSV and JSON files. The
// package stages it to disk, extracts it to a scratch directory, classifies
// each CSV by its header, normalizes rows into typed records, decodes JSON
// files as company reports and writes everything through a [Store] in one
// transaction.
//
// # Pipeline
//
//  1. [Stage] copies the upload to a temp file and checks it is a ZIP
//  2. [Extract] expands it, rejecting unsafe entry paths and oversized archives
//  3. [Sniff] classifies each CSV header as company ESG, news or unknown
//  4. [NormalizeCompanyScores] and [NormalizeNews] convert rows, skipping bad ones
//  5. [CollectReports] decodes every JSON file
//  6. [Ingester.Ingest] ties the steps together and commits
//
// # Failure Model
//
// Only archive-level faults abort a run with an [IngestionError]. A row that
// fails to parse is recorded as a [FailedRow]; a file with an unknown header,
// missing required columns or invalid JSON is skipped. Neither affects the
// rest of the archive. Any other error rolls the transaction back.
//
// Technical errors are mapped to user-facing messages with [MapError].
package core
