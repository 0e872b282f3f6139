// Package schedule arms the proactive renewal timer for a session.
//
// A [Scheduler] owns at most one timer. Arm decodes the access token's exp claim and
// schedules the renewal callback at max(exp-LeadTime, now+MinDelay); re-arming stops the
// previous timer first, and a generation counter discards a timer that fired while it was
// being replaced.
//
// Time is read through [Clock] so tests drive the scheduler with [FakeClock].
package schedule
