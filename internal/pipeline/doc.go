// SPDX-License-Identifier: MPL-2.0

// Package pipeline drives archives through extraction, classification,
// installation and registration.
//
// Each archive becomes an ArchiveTask that moves through a fixed sequence of
// stages and ends either completed or failed at the stage that went wrong.
// Failed tasks are not retried and their archives stay where they were
// found. The Runner discovers archives, once or continuously, and processes
// different archives concurrently under a configurable limit.
package pipeline
