/*
Package grading runs the end-of-run grading protocol against the lab.

A run moves through strictly ordered phases:

	idle -> preflight -> rebooting -> grading -> completed | cancelled | aborted

Preflight consults the readiness gate. Rebooting restarts both nodes in
parallel and enforces a minimum settle time. Grading fires one request per
task concurrently and folds every outcome into the session as it arrives.
Only a completed run submits results and clears the saved session.

Cancellation is cooperative: a Token is checked at phase boundaries and
never interrupts a request that is already in flight.
*/
package grading
