// Package channel turns a long-lived worker process into a request/response
// service.
//
// The worker reads one command per line on stdin and, after finishing each
// command, writes a JSON object followed by a literal sentinel on stdout.
// Output arrives in arbitrary chunks, so a Framer accumulates bytes and
// splits complete responses off at the sentinel, keeping whatever follows
// for the next response. Channel owns the process, spawns it lazily,
// correlates each frame with the single in-flight command, and enforces a
// per-command timeout.
package channel
