// Command respvalidator validates HTTP responses against an OpenAPI spec.
package main

import "github.com/getmockd/respvalidator/pkg/cli"

func main() {
	cli.Execute()
}
