// Package cliconfig resolves respvalidator settings from flags, environment
// variables and defaults, in that order of precedence.
//
// Environment variables:
//
//	OPENAPI_JSON_RESPONSE_VALIDATOR_PORT  port of the validation service
//	RESPVALIDATOR_LOG_LEVEL               debug, info, warn or error
//	RESPVALIDATOR_LOG_FORMAT              text or json
//	RESPVALIDATOR_BIN                     binary launched in subprocess mode
package cliconfig
