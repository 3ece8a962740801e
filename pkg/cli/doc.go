// Package cli provides the respvalidator command line.
//
// The serve command runs the validation service as a foreground process;
// it is what the supervisor launches in subprocess mode. The validate
// command checks a single response against a spec without starting a
// service.
package cli
