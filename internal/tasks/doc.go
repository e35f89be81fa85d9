// Package tasks drives transfer tasks through the five-stage pipeline.
//
// # Orchestration model
//
// The [Orchestrator] owns the task store's write path. Its run loop is
// strictly sequential: it picks the oldest pending task, executes the
// pipeline, persists a progress checkpoint after every stage, and only
// then looks for the next pending task. UI surfaces interact with it
// exclusively through Enqueue, Cancel, and the event stream.
//
// # Pipeline
//
// Within a running task five ordered stages execute, each with its own
// progress ceiling:
//
//  1. Resolve the source share and filter banned keywords  (20%)
//  2. Save the share into the user's source drive          (50%)
//  3. Create an outbound share of that copy                (60%)
//  4. Save that share into the destination drive           (90%)
//  5. Create the destination share                         (100%)
//
// # Failure handling
//
// Remote calls go through [callWithRetry]: network errors, timeouts, and
// rate limits are retried with a fixed delay (rate limits back off
// longer); an expired session triggers exactly one refresh-and-retry
// outside the retry budget; every other failure aborts the task with the
// structured error preserved in its result.
//
// # Progress reporting
//
// State changes are broadcast as [TaskEvent] values through a
// non-blocking subscriber registry; a slow listener misses events rather
// than stalling the pipeline.
package tasks
