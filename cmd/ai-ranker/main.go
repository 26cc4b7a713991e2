// Command ai-ranker is the operator-facing CLI for the brand-representation
// measurement runtime: template management, provider health checks, and
// run dispatch (spec.md 6's external operation surface, exposed here over
// a local CLI instead of a network API).
package main

import "github.com/contestra/ai-ranker-core/cmd/ai-ranker/cmd"

func main() {
	cmd.Execute()
}
