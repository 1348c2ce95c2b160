// Package mcpserver supervises external tool-server processes.
//
// A Supervisor owns one tool server. Start spawns the child process, waits a
// short bootstrap delay, performs the initialize handshake over the child's
// stdin/stdout and resolves once the server answered. While the process is
// starting, its stderr is watched by a Classifier; a fatal-looking line
// fails the start after a short grace period so more diagnostic text can be
// collected.
//
// All reactions to one process instance (stdout chunks, stderr lines, exit,
// timers and stop requests) are handled by a single goroutine per instance,
// so the lifecycle state needs no further coordination.
//
// Lifecycle:
//
//	stopped -> starting -> running -> stopped
//	              |
//	              +-> error
//
// Every transition, diagnostic line and protocol message is published as a
// reporting.Event.
package mcpserver
