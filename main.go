// main.go
//
// Entry point for moe-bench; subcommands (compile, query, monitor) live in cmd/.

package main

import (
	"github.com/ChuDinhKlopp/moe-offloading/cmd"
)

func main() {
	cmd.Execute()
}
