// Package sink implements tele.Sink destinations for accepted telemetry.
//
// Influx posts line protocol over HTTP, Mqtt publishes one message per point,
// Spool persists points on disk and drains them into another sink,
// Memory keeps everything for tests, Multi fans out.
package sink
