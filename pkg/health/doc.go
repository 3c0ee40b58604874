/*
Package health implements the readiness ping described in the
invocation protocol: after starting a container, the Orchestrator POSTs
{"ping": true} to its invocation endpoint every 500ms until it responds
or a configurable budget elapses, at which point the ensure/provision
call fails with a startup timeout.

HTTPChecker is the only Checker implementation needed for that contract;
Status/Config exist so the same polling-and-sticky-verdict shape can
also back a plain liveness probe if one is wired up, without a second
implementation of "N consecutive failures flips the verdict".
*/
package health
