/*
Package domain contains the core models of a lab exam run.

It defines the entities shared by the session, grading and presentation layers
and the wire shapes exchanged with the lab backend. This package is kept pure and
free of I/O, following the same ports-and-adapters split as the rest of the module.

# Key Entities

  - Task: A gradable unit of work against one or both lab nodes.
  - TaskResult: The latest grading outcome of a task within a session.
  - Snapshot: The persisted form of a session, used to resume after a restart.
  - ChangeEvent: A notification emitted after every session mutation.
*/
package domain
