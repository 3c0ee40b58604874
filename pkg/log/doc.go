/*
Package log wraps zerolog to give the Gateway and Orchestrator processes
structured, component- and trace-scoped logging.

Init configures the process-wide Logger once at startup (console writer
for a terminal, JSON for production). WithComponent and WithFunction
derive child loggers carrying a fixed field; WithTrace derives one
carrying the trace_id/request_id pair so every log line written while
handling one request, across however many suspension points it crosses,
shows matching correlation ids.
*/
package log
