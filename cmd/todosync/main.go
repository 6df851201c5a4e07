// Command todosync runs the offline cache and sync layer for the task app.
package main

import (
	"os"

	"github.com/roach88/todosync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
