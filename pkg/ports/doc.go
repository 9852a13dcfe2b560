/*
Package ports defines the driven ports (interfaces) of labexam.

These interfaces decouple the session, readiness and grading logic from the
persistence backend and from the lab grading service.

# Key Interfaces

  - SessionStore: persists and loads session Snapshots (file, Redis, memory).
  - DistributedLocker: cross-process locking around a session key.
  - LabAPI: the grading backend, split into small role interfaces
    (ConfigSource, ConnectionTester, TaskSource, Grader, Rebooter,
    ResultsStore, IPDiscoverer, StatsSource) so consumers ask only for
    what they use.
*/
package ports
