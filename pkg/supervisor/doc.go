// Package supervisor starts the validation service and waits until it is
// ready to validate.
//
// Start launches the service either inside the current process or as a
// "respvalidator serve" subprocess, then polls the readiness route up to
// 20 times, 500ms apart. Polling stops early when the service reports that
// the spec failed to compile or the subprocess exited.
//
// Service.Stop shuts the service down. When ExitProcessWhenServiceIsStopped
// is set (the default) it then exits the process, and a 10s watchdog forces
// exit status 1 if the graceful close stalls.
package supervisor
